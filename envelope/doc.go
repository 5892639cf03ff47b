// Package envelope encodes cache values into self-describing store payloads.
//
// A payload carries a type tag, optional expiration metadata and the JSON form
// of the value. Type tags resolve through an explicit TypeRegistry populated at
// startup; nothing is looked up by reflection on the read path.
package envelope
