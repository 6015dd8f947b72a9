package config

import "veloxid/endpoint"

// ToSpec converts a parsed Endpoint into the endpoint.Spec the binder
// package understands. It is a pure data mapping; all the real decisions
// (secret presence, route validity) already happened in Validate.
func (e Endpoint) ToSpec(name string) endpoint.Spec {
	mode := endpoint.ModeDirect
	if e.Type == "tunnel" {
		mode = endpoint.ModeTunnel
	}
	direction := endpoint.DirectionOutbound
	if e.Direction == "inbound" {
		direction = endpoint.DirectionInbound
	}
	host := e.Host
	if host == "" && direction == endpoint.DirectionInbound {
		host = "0.0.0.0"
	}
	return endpoint.Spec{
		Name:                name,
		Host:                host,
		Port:                e.Port,
		Mode:                mode,
		Direction:           direction,
		Secret:              e.Secret,
		MaxInFlight:         e.MaxInFlight,
		AcceptRatePerSecond: e.AcceptRatePerSecond,
		AcceptBurst:         e.AcceptBurst,
	}
}
