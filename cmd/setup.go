package cmd

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/srv6nat/internal/config"
	"firestige.xyz/srv6nat/internal/core"
	"firestige.xyz/srv6nat/internal/localsid"
)

// parseLocalSIDFlag splits "<ipv6> end.nat from <ipv4> to <ipv4>" into a
// local SID definition.
func parseLocalSIDFlag(s string) (config.LocalSIDConfig, error) {
	addr, spec, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return config.LocalSIDConfig{}, fmt.Errorf("%w: localsid %q: expected \"<ipv6> %s from <ip4> to <ip4>\"", core.ErrParse, s, localsid.EndNAT.Keyword)
	}
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return config.LocalSIDConfig{}, fmt.Errorf("%w: localsid %q: %v", core.ErrParse, s, err)
	}
	return config.LocalSIDConfig{Address: a, Behavior: strings.TrimSpace(spec)}, nil
}

// buildTable creates the local SID table from the configured SIDs plus
// extra ones given on the command line.
func buildTable(cfg *config.GlobalConfig, extra []string, opts ...localsid.Option) (*localsid.Registry, *localsid.Table, error) {
	sids := append([]config.LocalSIDConfig(nil), cfg.LocalSIDs...)
	for _, s := range extra {
		ls, err := parseLocalSIDFlag(s)
		if err != nil {
			return nil, nil, err
		}
		sids = append(sids, ls)
	}

	reg := localsid.NewRegistry()
	opts = append([]localsid.Option{localsid.WithLimit(cfg.Dataplane.MaxLocalSIDs)}, opts...)
	tbl, err := localsid.NewTable(reg, opts...)
	if err != nil {
		return nil, nil, err
	}
	for _, ls := range sids {
		if _, err := tbl.Add(ls.Address, ls.Behavior); err != nil {
			return nil, nil, err
		}
	}
	return reg, tbl, nil
}
