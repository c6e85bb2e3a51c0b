//go:build !noxhci

package host

// XHCIBuilt reports whether XHCI support is compiled in. Build with the
// noxhci tag to exclude it.
const XHCIBuilt = true
