// Package midea holds the values shared by every layer of the local control
// client: the identity of a unit on the network, the token/key credentials
// used to authenticate with it, and the error taxonomy.
//
// # Errors
//
// Every operation returns *Error values. Use the Is helpers or KindOf to
// branch on the category:
//
//	if midea.IsAuthError(err) {
//	    fmt.Println(midea.GetTroubleshootingHint(err))
//	}
//
// Lower layers never swallow errors; the device facade passes them through
// unchanged.
package midea
