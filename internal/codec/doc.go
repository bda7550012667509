// Package codec implements the byte level layers of the Midea local protocol.
//
// Two nested encodings sit between the TCP socket and the appliance frame:
//
//   - The 5A5A packet: a 40 byte header addressed to a device id, the
//     appliance frame encrypted with AES-128-ECB under MD5(SignKey), and an
//     MD5 trailer over the packet salted with SignKey.
//   - The 8370 envelope (protocol v3 only): a 6 byte header, a 16-bit
//     request counter, and for encrypted types an AES-256-CBC ciphertext
//     under the session key followed by a SHA-256 signature.
//
// The session key is established by a handshake. The client sends its token
// in a plain HandshakeRequest frame; the unit answers with 64 bytes that
// DeriveSessionKey verifies and converts.
//
// Every function here is pure. Counters, timestamps and keys are parameters,
// so identical inputs always produce identical bytes:
//
//	frame, _ := codec.EncodeFrame(key, codec.EncryptedRequest, 7, codec.EncodePacket(id, aa, now))
//	decoded, err := codec.DecodeFrame(key, frame)
package codec
