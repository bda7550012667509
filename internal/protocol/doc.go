// Package protocol implements the air conditioner command model carried
// inside 5A5A packets.
//
// # Appliance Frames
//
// Every command and response is an 0xAA frame:
//   - Start byte: 0xAA
//   - Length: bytes after the start byte
//   - Device type: 0xAC for air conditioners
//   - Frame type: 0x02 set, 0x03 query, 0x04/0x05 unsolicited notify
//   - Body, then a CRC-8/MAXIM of the body
//   - Checksum: two's complement of the byte sum
//
// # Commands
//
// EncodeQuery asks for the current status. EncodeSetCommand sends a complete
// state: the unit has no partial update, so a change to one field must be
// merged onto a freshly read state first or every other field is reset.
//
//	current, _ := protocol.DecodeStatus(reply)
//	next := protocol.Merge(current, protocol.Partial{Power: protocol.Ptr(true)})
//	frame, err := protocol.EncodeSetCommand(next, protocol.SetOptions{Beep: true}, protocol.NextMessageID())
//
// Status fields we do not model (timers, sleep, follow-me, display unit,
// freeze protection) are kept inside ApplianceState and written back by the
// next set command.
//
// # Units
//
// Setpoints are always Celsius in half degree steps between 16 and 31.
// Fahrenheit is a display concern handled by callers.
package protocol
