package reporter

import (
	"github.com/GriffinCanCode/apmcore/internal/model"
)

func sampleTransaction() *model.Transaction {
	rate := 0.5
	return &model.Transaction{
		ID:         "00f067aa0ba902b7",
		TraceID:    "0af7651916cd43dd8448eb211c80319c",
		Name:       "GET /orders",
		Type:       "request",
		Result:     "HTTP 2xx",
		Outcome:    model.OutcomeSuccess,
		Timestamp:  1_700_000_000_000_000,
		Duration:   12.5,
		Sampled:    true,
		SampleRate: &rate,
		SpanCount:  model.SpanCount{Started: 1},
		Context: &model.Context{
			Request:  &model.Request{Method: "GET", URL: "http://localhost/orders"},
			Response: &model.Response{StatusCode: 200},
		},
	}
}

func sampleSpan() *model.Span {
	return &model.Span{
		ID:            "b7ad6b7169203331",
		TraceID:       "0af7651916cd43dd8448eb211c80319c",
		ParentID:      "00f067aa0ba902b7",
		TransactionID: "00f067aa0ba902b7",
		Name:          "SELECT FROM orders",
		Type:          "db",
		Subtype:       "postgresql",
		Action:        "query",
		Outcome:       model.OutcomeSuccess,
		Timestamp:     1_700_000_000_001_000,
		Duration:      3,
		Context: &model.SpanContext{
			Destination: &model.Destination{
				Address: "db.local",
				Port:    5432,
				Service: &model.DestinationService{Resource: "postgresql"},
			},
		},
		Composite: &model.Composite{CompressionStrategy: model.StrategyExactMatch, Count: 3, Sum: 9},
	}
}

var testMetadata = model.Metadata{
	Service: model.Service{
		Name:  "checkout",
		Agent: model.Agent{Name: AgentName, Version: AgentVersion, EphemeralID: "eph"},
	},
	Process: model.Process{PID: 42},
}
