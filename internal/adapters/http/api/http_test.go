package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/seasonal/internal/adapters/http/api"
	"github.com/okian/seasonal/internal/adapters/provider"
	repository "github.com/okian/seasonal/internal/adapters/repository"
	service "github.com/okian/seasonal/internal/app"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/model"
	"github.com/okian/seasonal/internal/domain/types"
	"github.com/okian/seasonal/internal/domain/verdict"
	"github.com/okian/seasonal/internal/ensemble"
	"github.com/okian/seasonal/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	mu sync.Mutex

	err       error
	submitErr error
	duplicate bool

	lastMethod string
	lastJudge  string
	lastSub    service.Submission
	lastKey    string
	lastImage  image.Image

	records map[string]types.AnalysisRecord
}

func (m *mockDeps) AnalyzeParallel(_ context.Context, img image.Image, method string) (types.AnalysisResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastMethod, m.lastImage = method, img
	if m.err != nil {
		return types.AnalysisResponse{}, m.err
	}
	if method == "" {
		method = "voting"
	}
	return types.AnalysisResponse{
		Verdict:   verdict.Verdict{Label: "Soft Autumn", Confidence: 0.8, Undertone: "warm", Season: "autumn", Subtype: "soft"},
		Mode:      "parallel",
		Method:    method,
		Providers: []types.ProviderStatus{{Provider: "gemini", OK: true}},
	}, nil
}

func (m *mockDeps) AnalyzeHybrid(_ context.Context, _ image.Image, judge string) (types.AnalysisResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastJudge = judge
	if m.err != nil {
		return types.AnalysisResponse{}, m.err
	}
	return types.AnalysisResponse{
		Verdict: verdict.Verdict{Label: "True Winter", Confidence: 0.9},
		Mode:    "hybrid",
		Judge:   judge,
	}, nil
}

func (m *mockDeps) Submit(_ context.Context, sub service.Submission, key string) (types.SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSub, m.lastKey = sub, key
	if m.submitErr != nil {
		return types.SubmitResponse{}, m.submitErr
	}
	return types.SubmitResponse{ID: "analysis-1", Status: "queued", Duplicate: m.duplicate}, nil
}

func (m *mockDeps) Analysis(_ context.Context, id string) (types.AnalysisRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return types.AnalysisRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "queueLength": 0}
}

func pngPayload(w, h int) string {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, G: 150, B: 120, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func jpegPayload(w, h int) string {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var doc map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	return doc
}

func TestAnalyzeEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a parallel analysis is posted", func() {
			w := do(mux, http.MethodPost, "/api/analyze/color", map[string]string{"image": pngPayload(120, 120), "method": "consensus"}, nil)

			Convey("Then the verdict is returned at the top level", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				doc := decode(w)
				So(doc["personal_color_type"], ShouldEqual, "Soft Autumn")
				So(doc["method"], ShouldEqual, "consensus")
				So(deps.lastMethod, ShouldEqual, "consensus")
				So(deps.lastImage.Bounds().Dx(), ShouldEqual, 120)
			})
		})

		Convey("When the image is sent as a data URL", func() {
			w := do(mux, http.MethodPost, "/api/analyze/color", map[string]string{"image": "data:image/png;base64," + pngPayload(150, 100)}, nil)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastImage.Bounds().Dy(), ShouldEqual, 100)
			})
		})

		Convey("When the image is a JPEG", func() {
			w := do(mux, http.MethodPost, "/api/analyze/color", map[string]string{"image": jpegPayload(200, 200)}, nil)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When a hybrid analysis is posted", func() {
			w := do(mux, http.MethodPost, "/api/analyze/color/hybrid", map[string]string{"image": pngPayload(120, 120), "judge": "gemini"}, nil)

			Convey("Then the judge is forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastJudge, ShouldEqual, "gemini")
				So(decode(w)["judge"], ShouldEqual, "gemini")
			})
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, "/api/analyze/color", nil, nil)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the request is malformed", func() {
			cases := []struct {
				name string
				body any
				code string
			}{
				{"invalid json", "{not json", "bad_request"},
				{"missing image", map[string]string{"method": "voting"}, "invalid_image"},
				{"not base64", map[string]string{"image": "%%%"}, "invalid_image"},
				{"not an image", map[string]string{"image": base64.StdEncoding.EncodeToString([]byte("hello"))}, "invalid_image"},
				{"too small", map[string]string{"image": pngPayload(10, 10)}, "invalid_image"},
				{"too wide", map[string]string{"image": pngPayload(5000, 120)}, "invalid_image"},
				{"plain data URL", map[string]string{"image": "data:image/png," + pngPayload(120, 120)}, "invalid_image"},
			}

			Convey("Then each is rejected before any provider is called", func() {
				for _, c := range cases {
					w := do(mux, http.MethodPost, "/api/analyze/color", c.body, nil)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decode(w)["code"], ShouldEqual, c.code)
				}
				So(deps.lastImage, ShouldBeNil)
			})
		})

		Convey("When the image exceeds the byte limit", func() {
			small := newMux(deps, api.WithImageLimits(api.ImageLimits{MaxBytes: 64}))
			w := do(small, http.MethodPost, "/api/analyze/color", map[string]string{"image": pngPayload(120, 120)}, nil)

			Convey("Then it is rejected as too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(decode(w)["code"], ShouldEqual, "image_too_large")
			})
		})

		Convey("When the analysis itself fails", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{aggregate.ErrUnknownMethod, http.StatusBadRequest, "unknown_method"},
				{ensemble.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider"},
				{&ensemble.AllProvidersFailedError{Failures: []ensemble.Result{{Provider: "gemini", Err: &provider.Error{Provider: "gemini", Err: provider.ErrTimeout}}}}, http.StatusBadGateway, "all_providers_failed"},
				{&ensemble.JudgeError{Judge: "claude", Err: verdict.ErrMalformedVerdict}, http.StatusBadGateway, "judge_failure"},
				{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}

			Convey("Then the error kind picks the status", func() {
				for _, c := range cases {
					deps.err = c.err
					w := do(mux, http.MethodPost, "/api/analyze/color/hybrid", map[string]string{"image": pngPayload(120, 120)}, nil)
					So(w.Code, ShouldEqual, c.status)
					doc := decode(w)
					So(doc["code"], ShouldEqual, c.code)
					So(doc["error"], ShouldNotBeEmpty)
				}
			})
		})
	})
}

func TestAnalysesEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{records: map[string]types.AnalysisRecord{
			"analysis-1": {ID: "analysis-1", Status: "succeeded", Mode: "parallel", Result: &verdict.Verdict{Label: "Soft Autumn"}},
		}}
		mux := newMux(deps)

		Convey("When an analysis is submitted with an idempotency key", func() {
			w := do(mux, http.MethodPost, "/api/analyses",
				map[string]string{"mode": "Hybrid", "judge": "openai", "image": pngPayload(120, 120)},
				map[string]string{api.IdempotencyHeader: " key-1 "})

			Convey("Then it is accepted for processing", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Location"), ShouldEqual, "/api/analyses/analysis-1")
				So(decode(w)["status"], ShouldEqual, "queued")
				So(deps.lastKey, ShouldEqual, "key-1")
				So(deps.lastSub.Mode, ShouldEqual, model.ModeHybrid)
				So(deps.lastSub.Judge, ShouldEqual, "openai")
			})
		})

		Convey("When no mode is given", func() {
			w := do(mux, http.MethodPost, "/api/analyses", map[string]string{"image": pngPayload(120, 120)}, nil)

			Convey("Then parallel is assumed", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.lastSub.Mode, ShouldEqual, model.ModeParallel)
			})
		})

		Convey("When the submission repeats an idempotency key", func() {
			deps.duplicate = true
			w := do(mux, http.MethodPost, "/api/analyses", map[string]string{"image": pngPayload(120, 120)}, map[string]string{api.IdempotencyHeader: "key-1"})

			Convey("Then the existing analysis is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When the queue is full", func() {
			deps.submitErr = service.ErrBackpressure
			w := do(mux, http.MethodPost, "/api/analyses", map[string]string{"image": pngPayload(120, 120)}, nil)

			Convey("Then the client is asked to retry", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(w.Header().Get("Retry-After"), ShouldEqual, "1")
				So(decode(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When the service is shutting down", func() {
			deps.submitErr = service.ErrStopped
			w := do(mux, http.MethodPost, "/api/analyses", map[string]string{"image": pngPayload(120, 120)}, nil)

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When the mode is unknown", func() {
			deps.submitErr = service.ErrInvalidMode
			w := do(mux, http.MethodPost, "/api/analyses", map[string]string{"mode": "batch", "image": pngPayload(120, 120)}, nil)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "invalid_mode")
			})
		})

		Convey("When a known analysis is fetched", func() {
			w := do(mux, http.MethodGet, "/api/analyses/analysis-1", nil, nil)

			Convey("Then its record is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				doc := decode(w)
				So(doc["status"], ShouldEqual, "succeeded")
				result, _ := doc["result"].(map[string]any)
				So(result["personal_color_type"], ShouldEqual, "Soft Autumn")
			})
		})

		Convey("When an unknown analysis is fetched", func() {
			w := do(mux, http.MethodGet, "/api/analyses/missing", nil, nil)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When the id is malformed", func() {
			w := do(mux, http.MethodGet, "/api/analyses/a/b", nil, nil)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then /healthz reports ok", func() {
			w := do(mux, http.MethodGet, "/healthz", nil, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("Then /stats returns the service statistics", func() {
			w := do(mux, http.MethodGet, "/stats", nil, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then /metrics exposes the registry", func() {
			_ = do(mux, http.MethodGet, "/healthz", nil, nil)
			w := do(mux, http.MethodGet, "/metrics", nil, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "seasonal_ensemble_http_requests_total")
		})
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	Convey("Given a handler behind the request id middleware", t, func() {
		var seen string
		h := api.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logger.RequestID(r.Context())
		}))

		Convey("When the client sends an id", func() {
			w := do(h, http.MethodGet, "/", nil, map[string]string{api.RequestIDHeader: "req-42"})

			Convey("Then it is echoed and attached to the context", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-42")
				So(seen, ShouldEqual, "req-42")
			})
		})

		Convey("When the client sends none", func() {
			w := do(h, http.MethodGet, "/", nil, nil)

			Convey("Then one is generated", func() {
				id := w.Header().Get(api.RequestIDHeader)
				So(id, ShouldNotBeEmpty)
				So(seen, ShouldEqual, id)
			})
		})

		Convey("When the client id is oversized", func() {
			w := do(h, http.MethodGet, "/", nil, map[string]string{api.RequestIDHeader: strings.Repeat("x", 500)})

			Convey("Then it is replaced", func() {
				So(len(w.Header().Get(api.RequestIDHeader)), ShouldBeLessThan, 500)
			})
		})
	})
}
