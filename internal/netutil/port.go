package netutil

import (
	"fmt"
	"net"
)

// SelectBindAddr picks the address the control API listens on. The preferred
// address wins when it is free; otherwise, with fallback enabled, the first
// free candidate is used. The inspector runs beside a browser that may have
// claimed neighboring ports, so candidates are probed in a fixed order
// rather than falling back to an ephemeral port the shell cannot predict.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		if addrIsFree(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("bind address %s is in use and fallback is disabled", preferred)
		}
	}

	for _, addr := range candidates {
		if addrIsFree(addr) {
			return addr, nil
		}
	}

	return "", fmt.Errorf("no free inspector bind address among %d candidates", len(candidates))
}

// addrIsFree probes the address with a throwaway listener. The answer is
// inherently racy; callers treat it as best-effort and surface the real
// listen error later if the port is snatched in between.
func addrIsFree(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
