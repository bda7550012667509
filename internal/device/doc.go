// Package device is the caller-facing client for one air conditioner.
//
// A Client owns a transport session and turns it into three operations:
//
//	client, err := device.Connect(ctx, identity, creds, device.Options{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	state, err := client.Status(ctx)
//
//	state, err = client.Apply(ctx, protocol.Partial{
//	    Power:     protocol.Ptr(true),
//	    SetpointC: protocol.Ptr(device.FahrenheitToCelsius(72)),
//	})
//
// Apply is a read-merge-write: the unit has no partial update, so fields not
// named in the Partial are sent back exactly as the unit reported them.
//
// The client never retries. Errors from lower layers are returned unchanged
// and can be inspected with the helpers in package midea.
package device
