package utils

import (
	"fmt"
	"net"
)

// GetLocalIPs lists the non-loopback interface addresses of this host.
func GetLocalIPs(onlyIPv4 bool) ([]string, error) {
	var ips []string

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}

		ip := ipnet.IP
		if ip4 := ip.To4(); ip4 != nil {
			ips = append(ips, ip4.String())
			continue
		}
		if !onlyIPv4 && ip.To16() != nil && !ip.IsLinkLocalUnicast() {
			ips = append(ips, ip.String())
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no non-loopback interface addresses found")
	}
	return ips, nil
}

// JoinHostPort formats host and port, bracketing IPv6 literals.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, fmt.Sprintf("%d", port))
}
