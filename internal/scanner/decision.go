package scanner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// loadDecision runs the read-only lookups for the decision step. Lookup
// failures never fail the session: options stay empty or the entity is marked
// not found.
func (m *Machine) loadDecision(ctx context.Context, p domain.ScanPayload) Decision {
	ctx, cancel := context.WithTimeout(ctx, m.opts.LookupTimeout)
	defer cancel()

	switch v := p.(type) {
	case domain.CustomerIdentity:
		return Decision{Loaded: true, Customer: m.loadCustomer(ctx, v)}
	case domain.RedemptionReference:
		d := &RedemptionDecision{CardID: v.PunchCardID}
		detail, err := m.gateway.FetchCardDetail(ctx, v.PunchCardID)
		if err != nil || detail == nil {
			m.logLookup("card", v.PunchCardID, err)
			d.NotFound = true
		} else {
			d.Detail = detail
		}
		return Decision{Loaded: true, Redemption: d}
	case domain.BundleReference:
		d := &BundleDecision{BundleID: v.BundleID}
		detail, err := m.gateway.FetchBundleDetail(ctx, v.BundleID)
		if err != nil || detail == nil {
			m.logLookup("bundle", v.BundleID, err)
			d.NotFound = true
		} else {
			d.Bundle = detail
		}
		return Decision{Loaded: true, Bundle: d}
	}
	return Decision{Loaded: true}
}

func (m *Machine) loadCustomer(ctx context.Context, v domain.CustomerIdentity) *CustomerDecision {
	d := &CustomerDecision{UserID: v.UserID}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		programs, err := m.gateway.FetchActivePrograms(ctx, m.opts.MerchantID)
		if err != nil {
			m.logLookup("programs", m.opts.MerchantID, err)
			return
		}
		d.Programs = programs
	}()
	go func() {
		defer wg.Done()
		catalogs, err := m.gateway.FetchActiveBundleCatalogs(ctx, m.opts.MerchantID)
		if err != nil {
			m.logLookup("bundle_catalogs", m.opts.MerchantID, err)
			return
		}
		d.BundleCatalogs = catalogs
	}()
	wg.Wait()
	return d
}

func (m *Machine) logLookup(resource, id string, err error) {
	if err == nil || errorutil.IsNotFound(err) {
		m.logger.Debug("lookup found nothing", zap.String("resource", resource), zap.String("id", id))
		return
	}
	m.logger.Warn("lookup failed", zap.String("resource", resource), zap.String("id", id), zap.Error(err))
}
