// Package tls manages the locally trusted certificate the agent serves
// HTTPS and WSS with, so pages and phones on the LAN can reach it securely.
package tls

import (
	"net"
	"sort"
)

// LANAddrs returns the IPv4 addresses of all up, non-loopback interfaces.
func LANAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, ipv4Strings(ifAddrs)...)
	}
	return addrs, nil
}

func ipv4Strings(addrs []net.Addr) []string {
	var out []string
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
			out = append(out, ip.String())
		}
	}
	return out
}

// certHosts merges the loopback names, extra and lan into a sorted,
// duplicate-free list of certificate subject names.
func certHosts(extra, lan []string) []string {
	seen := map[string]bool{"localhost": true, "127.0.0.1": true}
	for _, h := range extra {
		seen[h] = true
	}
	for _, h := range lan {
		seen[h] = true
	}
	delete(seen, "")

	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
