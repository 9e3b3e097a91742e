package workflow

import (
	"bitbucket.org/mmdatafocus/fulfillment_backend/config"
	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"bitbucket.org/mmdatafocus/fulfillment_backend/utils"
	"gorm.io/gorm"
)

// CandidateResolution is the ordered candidate list plus enough context for
// the router to explain its eventual pick.
type CandidateResolution struct {
	StoreId               int
	CandidateWarehouseIds []int
	// TopWarehouseIds marks which candidates came from an is_top binding.
	TopWarehouseIds map[int]bool
	Reason          models.RoutingReason
	FallbackUsed    bool
}

// routingPolicy decides what happens when no province route matched.
// Exactly two variants exist, mapped from the store's stored route mode.
type routingPolicy interface {
	onNoProvinceMatch(tx *gorm.DB, businessId string, storeId int) (*CandidateResolution, error)
}

// strictTopPolicy: province routes are the only source of candidates.
type strictTopPolicy struct{}

func (strictTopPolicy) onNoProvinceMatch(tx *gorm.DB, businessId string, storeId int) (*CandidateResolution, error) {
	return &CandidateResolution{
		StoreId:         storeId,
		TopWarehouseIds: map[int]bool{},
		Reason:          models.RoutingReasonNoProvinceRouteMatch,
	}, nil
}

// fallbackPolicy: fall back to the store's warehouse bindings.
type fallbackPolicy struct{}

func (fallbackPolicy) onNoProvinceMatch(tx *gorm.DB, businessId string, storeId int) (*CandidateResolution, error) {
	bindings, err := models.ListActiveBindings(tx, businessId, storeId)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return &CandidateResolution{
			StoreId:         storeId,
			TopWarehouseIds: map[int]bool{},
			Reason:          models.RoutingReasonNoWarehouseBound,
		}, nil
	}

	resolution := &CandidateResolution{
		StoreId:         storeId,
		TopWarehouseIds: map[int]bool{},
		Reason:          models.RoutingReasonFallbackToBindings,
		FallbackUsed:    true,
	}
	seen := map[int]bool{}
	for _, b := range bindings {
		if b.WarehouseId <= 0 || seen[b.WarehouseId] {
			continue
		}
		seen[b.WarehouseId] = true
		resolution.CandidateWarehouseIds = append(resolution.CandidateWarehouseIds, b.WarehouseId)
		if b.IsTop {
			resolution.TopWarehouseIds[b.WarehouseId] = true
		}
	}
	return resolution, nil
}

func policyForMode(mode models.RouteMode) routingPolicy {
	if mode == models.RouteModeStrictTop {
		return strictTopPolicy{}
	}
	return fallbackPolicy{}
}

// RoutingCandidateResolver turns (channel, destination province) into an
// ordered warehouse candidate list.
type RoutingCandidateResolver struct{}

func NewRoutingCandidateResolver() *RoutingCandidateResolver {
	return &RoutingCandidateResolver{}
}

// Resolve auto-creates the store on first contact, then consults province
// routes; a province match is authoritative and never unioned with bindings.
func (r *RoutingCandidateResolver) Resolve(tx *gorm.DB, businessId string, channel models.Channel, province string) (*CandidateResolution, error) {
	defaultMode := models.RouteModeFallback
	if config.StrictRoutingDefault() {
		defaultMode = models.RouteModeStrictTop
	}
	store, err := models.EnsureStore(tx, businessId, channel, defaultMode)
	if err != nil {
		return nil, err
	}

	normalized := models.NormalizeProvince(province)
	if normalized != "" {
		routed, err := models.ListActiveProvinceRouteWarehouses(tx, businessId, store.ID, normalized)
		if err != nil {
			return nil, err
		}
		candidates := make([]int, 0, len(routed))
		for _, id := range utils.UniqueSlice(routed) {
			if id > 0 {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) > 0 {
			return &CandidateResolution{
				StoreId:               store.ID,
				CandidateWarehouseIds: candidates,
				TopWarehouseIds:       map[int]bool{},
				Reason:                models.RoutingReasonProvinceRouteMatch,
			}, nil
		}
	}

	return policyForMode(store.RouteMode).onNoProvinceMatch(tx, businessId, store.ID)
}
