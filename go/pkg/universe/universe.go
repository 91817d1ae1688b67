package universe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider supplies the instrument universe a trading session runs on.
type Provider interface {
	Resolve(ctx context.Context) (map[string]string, error)
}

// Static resolves a fixed universe from a "code=name,code=name" list.
type Static struct {
	pairs string
}

func NewStatic(pairs string) *Static { return &Static{pairs: pairs} }

func (s *Static) Resolve(context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s.pairs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, name, ok := strings.Cut(part, "=")
		code = strings.TrimSpace(code)
		name = strings.TrimSpace(name)
		if !ok || code == "" || name == "" {
			return nil, fmt.Errorf("universe: bad pair %q", part)
		}
		out[code] = name
	}
	if len(out) == 0 {
		return nil, errors.New("universe: empty static universe")
	}
	return out, nil
}

// Contract is the slice of an instrument dump needed to pick tradable
// futures contracts.
type Contract struct {
	Code   string
	Name   string
	Expiry time.Time
}

// ContractLister supplies the venue's listed futures contracts.
type ContractLister interface {
	ListContracts(ctx context.Context) ([]Contract, error)
}

// FrontMonth resolves, for each configured index name, the
// nearest-expiry contract still trading. Front-month contracts carry
// the bulk of the volume, so they stand in for the index itself.
type FrontMonth struct {
	lister ContractLister
	names  []string
	now    func() time.Time
}

func NewFrontMonth(lister ContractLister, names []string) *FrontMonth {
	return &FrontMonth{lister: lister, names: names, now: time.Now}
}

func (f *FrontMonth) Resolve(ctx context.Context) (map[string]string, error) {
	contracts, err := f.lister.ListContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("universe: list contracts: %w", err)
	}
	today := f.now().Truncate(24 * time.Hour)

	out := make(map[string]string, len(f.names))
	for _, name := range f.names {
		var candidates []Contract
		for _, c := range contracts {
			if !strings.EqualFold(c.Name, name) {
				continue
			}
			if c.Expiry.Before(today) {
				continue
			}
			candidates = append(candidates, c)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("universe: no live contract for %s", name)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Expiry.Before(candidates[j].Expiry)
		})
		out[candidates[0].Code] = name
	}
	return out, nil
}
