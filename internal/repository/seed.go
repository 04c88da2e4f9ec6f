package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
)

// SeedFile is the JSON document loaded into a MemoryStore at startup
type SeedFile struct {
	Destinations []struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		MaxDailyCapacity int    `json:"max_daily_capacity"`
		Status           string `json:"status"`
		Zones            []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			MaxCapacity int    `json:"max_capacity"`
		} `json:"zones"`
		CapacityRules []struct {
			ID                 string   `json:"id"`
			Name               string   `json:"name"`
			Priority           int      `json:"priority"`
			StartDate          string   `json:"start_date"`
			EndDate            string   `json:"end_date"`
			ApplicableDays     []int    `json:"applicable_days"`
			AbsoluteCapacity   *int     `json:"absolute_capacity"`
			CapacityPercentage *float64 `json:"capacity_percentage"`
		} `json:"capacity_rules"`
		PricingRules []struct {
			ID                string   `json:"id"`
			Name              string   `json:"name"`
			Priority          int      `json:"priority"`
			BasePrice         float64  `json:"base_price"`
			AdultPrice        *float64 `json:"adult_price"`
			ChildPrice        *float64 `json:"child_price"`
			LocalPrice        *float64 `json:"local_price"`
			ForeignPrice      *float64 `json:"foreign_price"`
			PeakMultiplier    float64  `json:"peak_multiplier"`
			OffPeakMultiplier float64  `json:"off_peak_multiplier"`
		} `json:"pricing_rules"`
	} `json:"destinations"`
}

// LoadSeedFile reads path and loads its aggregates into store
func LoadSeedFile(store *MemoryStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	return Seed(store, &seed, time.Now())
}

// Seed loads seed into store, validating every rule
func Seed(store *MemoryStore, seed *SeedFile, now time.Time) error {
	for _, d := range seed.Destinations {
		status := domain.DestinationStatus(d.Status)
		if status == "" {
			status = domain.DestinationStatusActive
		}
		store.AddDestination(&domain.Destination{
			ID:               d.ID,
			Name:             d.Name,
			MaxDailyCapacity: d.MaxDailyCapacity,
			Status:           status,
			CreatedAt:        now,
			UpdatedAt:        now,
		})

		for _, z := range d.Zones {
			store.AddZone(&domain.Zone{
				ID:            z.ID,
				DestinationID: d.ID,
				Name:          z.Name,
				MaxCapacity:   z.MaxCapacity,
				UpdatedAt:     now,
			})
		}

		for _, r := range d.CapacityRules {
			start, end, err := parseWindow(r.StartDate, r.EndDate)
			if err != nil {
				return fmt.Errorf("capacity rule %q: %w", r.Name, err)
			}
			rule, err := domain.NewCapacityRule(domain.CapacityRuleParams{
				ID:                 r.ID,
				DestinationID:      d.ID,
				Name:               r.Name,
				Priority:           r.Priority,
				StartDate:          start,
				EndDate:            end,
				ApplicableDays:     r.ApplicableDays,
				AbsoluteCapacity:   r.AbsoluteCapacity,
				CapacityPercentage: r.CapacityPercentage,
				IsActive:           true,
				CreatedAt:          now,
			})
			if err != nil {
				return err
			}
			store.AddCapacityRule(rule)
		}

		for _, r := range d.PricingRules {
			rule, err := domain.NewPricingRule(domain.PricingRule{
				ID:                r.ID,
				DestinationID:     d.ID,
				Name:              r.Name,
				Priority:          r.Priority,
				BasePrice:         r.BasePrice,
				AdultPrice:        r.AdultPrice,
				ChildPrice:        r.ChildPrice,
				LocalPrice:        r.LocalPrice,
				ForeignPrice:      r.ForeignPrice,
				PeakMultiplier:    r.PeakMultiplier,
				OffPeakMultiplier: r.OffPeakMultiplier,
				IsActive:          true,
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			store.AddPricingRule(rule)
		}
	}
	return nil
}

func parseWindow(start, end string) (*time.Time, *time.Time, error) {
	parse := func(s string) (*time.Time, error) {
		if s == "" {
			return nil, nil
		}
		d, err := domain.ParseDate(s)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	s, err := parse(start)
	if err != nil {
		return nil, nil, err
	}
	e, err := parse(end)
	if err != nil {
		return nil, nil, err
	}
	return s, e, nil
}
