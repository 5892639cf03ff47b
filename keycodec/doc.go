// Package keycodec turns logical cache keys into store keys.
//
// Four strategies are provided. Plain and Hashed render canonical JSON;
// Reversible and HashedReversible use the envelope binary form. Only
// Reversible can be decoded back to the logical key.
package keycodec
