package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/internal/vectorstore"
	"github.com/voltquery/voltquery/pkg/nrel"
)

const transportationDescription = "TRANSPORTATION DOMAIN: questions about finding EV charging stations, " +
	"charger types (J1772, CCS, CHAdeMO, NEMA), DC fast charging, Level 2 charging, station networks, " +
	"and WHERE to charge. Do not use for charging COSTS, charging RATES, or charging at specific times; " +
	"those are utility questions."

// transportationTool answers charging-station questions from documents
// tagged domain=transportation, falling back to a live AFDC station
// lookup when the index has nothing near the location.
type transportationTool struct {
	retrievalTool
	stations nrel.Client
	geocoder *Geocoder
	guard    Guard
}

// NewTransportationTool builds the charging-station tool. stations may be
// nil to disable the live fallback.
func NewTransportationTool(search vectorstore.Searcher, completer llm.Completer, stations nrel.Client, geocoder *Geocoder, guard Guard, opts RetrievalOptions) Tool {
	return &transportationTool{
		retrievalTool: retrievalTool{
			name:        NameTransportation,
			description: transportationDescription,
			domain:      "transportation",
			search:      search,
			completer:   completer,
			opts:        opts,
		},
		stations: stations,
		geocoder: geocoder,
		guard:    guard,
	}
}

func (t *transportationTool) Answer(ctx context.Context, sub model.SubQuestion, q Query) model.ToolResult {
	start := time.Now()

	docs, err := t.retrieve(ctx, sub.Text, q)
	if err != nil {
		return model.FailedResult(sub, fmt.Sprintf("retrieval failed: %v", err), time.Since(start))
	}

	if len(docs) == 0 && t.stations != nil {
		if location := extractLocation(sub.Text, q.Filters); location != "" {
			live, liveErr := t.liveStations(ctx, location, q.topK())
			if liveErr != nil {
				zap.L().Warn("live station lookup failed",
					zap.String("location", location),
					zap.Error(liveErr),
				)
				reason := fmt.Sprintf("no indexed stations and the live station lookup failed: %v", liveErr)
				if resilience.IsCircuitOpen(liveErr) {
					reason = "charging station dependency unavailable: circuit breaker is open"
				}
				return model.FailedResult(sub, reason, time.Since(start))
			}
			docs = live
		}
	}

	return model.ToolResult{
		SubQuestion: sub,
		ToolName:    t.name,
		Answer:      digest(docs),
		Sources:     docs,
		Success:     true,
		Latency:     time.Since(start),
	}
}

// liveStations queries AFDC for the nearest stations and shapes them as
// documents so the synthesizer treats them like indexed evidence.
func (t *transportationTool) liveStations(ctx context.Context, location string, topK int) ([]model.SourceDocument, error) {
	coords, err := t.geocoder.Locate(ctx, location)
	if err != nil {
		return nil, err
	}

	stations, err := guarded(ctx, t.guard, func(ctx context.Context) ([]nrel.Station, error) {
		return t.stations.StationsNear(ctx, coords.Lat, coords.Lon, topK)
	})
	if err != nil {
		return nil, err
	}

	docs := make([]model.SourceDocument, 0, len(stations))
	for _, s := range stations {
		docs = append(docs, model.SourceDocument{
			Content: formatStation(s),
			Metadata: map[string]string{
				"domain":   "transportation",
				"source":   "afdc",
				"location": location,
				"network":  s.EVNetwork,
			},
			Score: 1.0,
		})
	}
	return docs, nil
}

func formatStation(s nrel.Station) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Charging station: %s, %s, %s, %s %s", s.StationName, s.StreetAddress, s.City, s.State, s.Zip)
	if s.EVNetwork != "" {
		fmt.Fprintf(&b, ". Network: %s", s.EVNetwork)
	}
	if len(s.EVConnectorTypes) > 0 {
		fmt.Fprintf(&b, ". Connectors: %s", strings.Join(s.EVConnectorTypes, ", "))
	}
	if s.EVDCFastCount > 0 {
		fmt.Fprintf(&b, ". DC fast ports: %d", s.EVDCFastCount)
	}
	if s.EVLevel2Count > 0 {
		fmt.Fprintf(&b, ". Level 2 ports: %d", s.EVLevel2Count)
	}
	if s.AccessDaysTime != "" {
		fmt.Fprintf(&b, ". Access: %s", s.AccessDaysTime)
	}
	if s.DistanceMiles > 0 {
		fmt.Fprintf(&b, ". Distance: %.1f miles", s.DistanceMiles)
	}
	return b.String()
}
