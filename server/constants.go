package server

import "github.com/nedpals/nfc-watch-agent/buildinfo"

// DefaultPort is the HTTP port the agent listens on.
const DefaultPort = 18080

// mDNS advertisement.
var (
	MDNSServiceType = "_nfc-watch._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// Routes.
const (
	RouteHealth = "/api/v1/health"
	RouteConfig = "/api/v1/config"
	RouteEvents = "/ws"
	RouteDevice = "/device"
	RouteCA     = "/ca.pem"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, PUT, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
