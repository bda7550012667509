// Package discovery finds Midea air conditioners on the local network.
//
// Midea WiFi modules do not advertise themselves over mDNS. Instead they
// answer a fixed 5A5A datagram sent to UDP port 6445 (or 20086 on older
// modules) with an encrypted packet describing the unit.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 3 * time.Second
//
//	for identity, err := range scanner.Discover(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Printf("Found: %d at %s (v%d)\n", identity.ID, identity.IP, identity.Version)
//	}
//
// # Replies
//
// Version 3 modules wrap their reply in an 8370 header; version 2 modules
// send the 5A5A packet bare. The wrapper decides the protocol version of the
// returned identity. A reply that cannot be parsed is logged at debug level
// and skipped.
//
// # Network Requirements
//
//   - The unit must be on the same broadcast domain, or Targets must name it
//   - Firewalls must allow UDP replies from ports 6445 and 20086
//
// # Thread Safety
//
// A Scanner holds no state between passes. Passes may run concurrently with
// each other and with open device sessions.
package discovery
