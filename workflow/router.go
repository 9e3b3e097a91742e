package workflow

import (
	"sort"

	"bitbucket.org/mmdatafocus/fulfillment_backend/models"
	"gorm.io/gorm"
)

// OrderLine is one requested item quantity. Lines with qty <= 0 are ignored;
// repeated items are summed before checking.
type OrderLine struct {
	ItemId int `json:"item_id" validate:"required"`
	Qty    int `json:"qty"`
}

// RouteDecision is a successful whole-order routing pick.
type RouteDecision struct {
	WarehouseId int               `json:"warehouse_id"`
	Reason      models.PickReason `json:"reason"`
	Considered  []CandidateCheck  `json:"considered"`
}

// WarehouseRouter scans candidates in order and picks the first warehouse
// that can cover the entire order. One warehouse per order; no splitting.
type WarehouseRouter struct {
	Availability AvailabilityProvider
}

func NewWarehouseRouter(availability AvailabilityProvider) *WarehouseRouter {
	return &WarehouseRouter{Availability: availability}
}

// aggregateLines collapses the order to per-item totals, dropping
// non-positive quantities. Item order is stable (ascending id) so shortage
// lists read deterministically.
func aggregateLines(lines []OrderLine) ([]int, map[int]int) {
	need := map[int]int{}
	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		need[line.ItemId] += line.Qty
	}
	itemIds := make([]int, 0, len(need))
	for itemId := range need {
		itemIds = append(itemIds, itemId)
	}
	sort.Ints(itemIds)
	return itemIds, need
}

func dedupCandidates(candidateIds []int) []int {
	seen := map[int]bool{}
	result := make([]int, 0, len(candidateIds))
	for _, id := range candidateIds {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

// Scan checks every candidate against the whole order and reports each one's
// verdict. Availability is read once per (warehouse, item).
func (r *WarehouseRouter) Scan(tx *gorm.DB, businessId string, channel models.Channel, candidateIds []int, lines []OrderLine) ([]CandidateCheck, error) {
	candidates := dedupCandidates(candidateIds)
	itemIds, need := aggregateLines(lines)

	checks := make([]CandidateCheck, 0, len(candidates))
	for _, warehouseId := range candidates {
		check := CandidateCheck{WarehouseId: warehouseId, OK: true}
		if len(itemIds) > 0 {
			available, err := r.Availability.AvailableForItems(tx, businessId, channel, warehouseId, itemIds)
			if err != nil {
				return nil, err
			}
			for _, itemId := range itemIds {
				if need[itemId] > available[itemId] {
					check.OK = false
					check.Insufficient = append(check.Insufficient, InsufficientLine{
						ItemId:    itemId,
						Need:      need[itemId],
						Available: available[itemId],
					})
				}
			}
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// Route picks the first candidate that covers the whole order.
// Zero candidates fails without touching availability; an order with no
// positive-quantity line routes nowhere and returns (nil, nil).
func (r *WarehouseRouter) Route(tx *gorm.DB, businessId string, channel models.Channel, resolution *CandidateResolution, lines []OrderLine) (*RouteDecision, error) {
	itemIds, need := aggregateLines(lines)
	if len(itemIds) == 0 {
		return nil, nil
	}

	candidates := dedupCandidates(resolution.CandidateWarehouseIds)
	if len(candidates) == 0 {
		return nil, &NoWarehouseConfiguredError{Reason: string(resolution.Reason)}
	}

	var considered []CandidateCheck
	for _, warehouseId := range candidates {
		available, err := r.Availability.AvailableForItems(tx, businessId, channel, warehouseId, itemIds)
		if err != nil {
			return nil, err
		}

		check := CandidateCheck{WarehouseId: warehouseId, OK: true}
		for _, itemId := range itemIds {
			if need[itemId] > available[itemId] {
				check.OK = false
				check.Insufficient = append(check.Insufficient, InsufficientLine{
					ItemId:    itemId,
					Need:      need[itemId],
					Available: available[itemId],
				})
			}
		}
		considered = append(considered, check)

		if check.OK {
			return &RouteDecision{
				WarehouseId: warehouseId,
				Reason:      pickReason(resolution, warehouseId),
				Considered:  considered,
			}, nil
		}
	}

	return nil, &NoWarehouseCanFulfillError{Considered: considered}
}

func pickReason(resolution *CandidateResolution, warehouseId int) models.PickReason {
	if resolution.Reason == models.RoutingReasonProvinceRouteMatch {
		return models.PickReasonProvinceRouteWithStock
	}
	if resolution.TopWarehouseIds[warehouseId] {
		return models.PickReasonTopWarehouseWithStock
	}
	return models.PickReasonBackupWarehouseWithStock
}
