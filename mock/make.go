package mock

import (
	"fmt"

	"gitlab.com/kittcore/kitt"
)

func MakeMockConfig() *kitt.Config {
	cfg := kitt.DefaultConfig()
	cfg.DataPath = "testdata/kitt"
	cfg.ListenerTimeout = 1000
	cfg.CacheTimeout = 200
	return cfg
}

// MakeMockDetails for each stage of a request
func MakeMockDetails(stage kitt.Stage) *kitt.WebRequestDetails {
	d := kitt.NewWebRequestDetails(&kitt.Request{
		URL:    "https://example.com/ads/banner.js",
		Method: "GET",
		Headers: map[string]string{
			"Accept": "*/*",
		},
	}, 1, 0, -1, kitt.ResourceScript)
	d = d.WithStage(stage)
	switch stage {
	case kitt.StageBeforeSendHeaders:
		d.RequestHeaders = map[string]string{"Accept": "*/*", "User-Agent": "kitt"}
	case kitt.StageHeadersReceived:
		d.ResponseHeaders = map[string]string{"Content-Type": "application/javascript", "Set-Cookie": "a=b"}
	}
	return d
}

// MakeMockRequests of different resource types
func MakeMockRequests() []*kitt.WebRequestDetails {
	types := []kitt.ResourceType{kitt.ResourceMainFrame, kitt.ResourceScript, kitt.ResourceImage}
	details := make([]*kitt.WebRequestDetails, 0)
	for i, rt := range types {
		d := kitt.NewWebRequestDetails(&kitt.Request{
			URL:    fmt.Sprintf("http://example.com/%d", i+1),
			Method: "GET",
		}, 1, 0, -1, rt)
		details = append(details, d.WithStage(kitt.StageBeforeRequest))
	}
	return details
}
