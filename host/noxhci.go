//go:build noxhci

package host

// XHCIBuilt reports whether XHCI support is compiled in.
const XHCIBuilt = false
