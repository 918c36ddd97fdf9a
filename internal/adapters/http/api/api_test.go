package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/okian/tally/internal/adapters/http/api"
	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/rating"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testParams() ledger.Params {
	return ledger.Params{
		EpochLength:             100,
		PeriodLength:            10,
		EpochReward:             uint256.NewInt(1_000_000),
		MinStake:                uint256.NewInt(10),
		MinRegistrationStake:    uint256.NewInt(100),
		SubEligibilityThreshold: uint256.NewInt(50),
		EligibilityThreshold:    uint256.NewInt(100),
		MinBackersBps:           0,
		WithdrawalDelay:         20,
		ClaimDelay:              10,
		TopK:                    16,
		RatingWeights:           rating.Weights{StakeBps: 8000, PerformanceBps: 2000},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := service.New(
		service.WithParams(testParams()),
		service.WithOwner("admin"),
		service.WithMaintainer("maintainer"),
		service.WithWorkerCount(1),
		service.WithQueueSize(1000),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, 100).Register(context.Background(), mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func doJSONList(t *testing.T, url string) (int, []map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var out []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func register(t *testing.T, ts *httptest.Server, addr, owner, stake string) uint64 {
	t.Helper()
	code, body := doJSON(t, http.MethodPost, ts.URL+"/entities", map[string]any{
		"address":       addr,
		"owner":         owner,
		"backers_bps":   5000,
		"initial_stake": stake,
	})
	if code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %v", addr, code, body)
	}
	return uint64(body["entity_id"].(float64))
}

func TestEntityEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts := newTestServer(t)

		Convey("When registering an entity", func() {
			id := register(t, ts, "0xaa", "alice", "150")

			Convey("Then it can be fetched by id and address", func() {
				code, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/entities/%d", ts.URL, id), nil)
				So(code, ShouldEqual, http.StatusOK)
				So(body["address"], ShouldEqual, "0xaa")
				So(body["status"], ShouldEqual, "eligible")
				So(body["stake"], ShouldEqual, "150")

				code, body = doJSON(t, http.MethodGet, ts.URL+"/entities?address=0xaa", nil)
				So(code, ShouldEqual, http.StatusOK)
				So(body["id"], ShouldEqual, float64(id))
			})

			Convey("Then a duplicate address is rejected", func() {
				code, _ := doJSON(t, http.MethodPost, ts.URL+"/entities", map[string]any{
					"address":       "0xaa",
					"owner":         "bob",
					"initial_stake": "200",
				})
				So(code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then a replayed request id is acknowledged without effect", func() {
				req := map[string]any{
					"request_id":    "reg-1",
					"address":       "0xbb",
					"owner":         "bob",
					"initial_stake": "200",
				}
				code, body := doJSON(t, http.MethodPost, ts.URL+"/entities", req)
				So(code, ShouldEqual, http.StatusCreated)
				So(body["duplicate"], ShouldBeFalse)

				code, body = doJSON(t, http.MethodPost, ts.URL+"/entities", req)
				So(code, ShouldEqual, http.StatusOK)
				So(body["duplicate"], ShouldBeTrue)
			})

			Convey("When the owner updates mutable fields", func() {
				code, body := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/entities/%d", ts.URL, id), map[string]any{
					"caller": "alice",
					"name":   strPtr("Prime"),
				})
				So(code, ShouldEqual, http.StatusOK)
				So(body["name"], ShouldEqual, "Prime")

				Convey("And a non-owner is rejected", func() {
					code, _ := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/entities/%d", ts.URL, id), map[string]any{
						"caller": "mallory",
						"name":   strPtr("Evil"),
					})
					So(code, ShouldEqual, http.StatusForbidden)
				})
			})

			Convey("When the maintainer revokes verification", func() {
				code, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/entities/%d/verify", ts.URL, id), map[string]any{
					"caller":   "maintainer",
					"verified": false,
				})
				So(code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "sub_eligible")
			})

			Convey("When the owner deregisters", func() {
				code, _ := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/entities/%d", ts.URL, id), map[string]any{
					"caller": "alice",
				})
				So(code, ShouldEqual, http.StatusOK)

				code, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/entities/%d", ts.URL, id), nil)
				So(code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "deregistered")
			})
		})

		Convey("When fetching an unknown entity", func() {
			code, _ := doJSON(t, http.MethodGet, ts.URL+"/entities/999", nil)
			So(code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestLeaderboardEndpoint(t *testing.T) {
	Convey("Given entities with different stakes", t, func() {
		ts := newTestServer(t)
		a := register(t, ts, "0xaa", "alice", "100")
		b := register(t, ts, "0xbb", "bob", "300")

		Convey("Then the leaderboard lists them by stake", func() {
			code, rows := doJSONList(t, ts.URL+"/leaderboard?limit=10")
			So(code, ShouldEqual, http.StatusOK)
			So(len(rows), ShouldEqual, 2)
			So(rows[0]["entity_id"], ShouldEqual, float64(b))
			So(rows[1]["entity_id"], ShouldEqual, float64(a))
		})

		Convey("Then a missing or oversized limit is rejected", func() {
			code, _ := doJSON(t, http.MethodGet, ts.URL+"/leaderboard", nil)
			So(code, ShouldEqual, http.StatusBadRequest)

			code, _ = doJSON(t, http.MethodGet, ts.URL+"/leaderboard?limit=1000", nil)
			So(code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStakeAndClaimFlow(t *testing.T) {
	Convey("Given one eligible entity", t, func() {
		ts := newTestServer(t)
		id := register(t, ts, "0xaa", "alice", "100")

		Convey("When a backer stakes and epochs pass", func() {
			code, body := doJSON(t, http.MethodPost, ts.URL+"/stakes", map[string]any{
				"caller":    "carol",
				"entity_id": id,
				"amount":    "100",
			})
			So(code, ShouldEqual, http.StatusCreated)
			stakeID := uint64(body["stake_id"].(float64))

			code, body = doJSON(t, http.MethodPost, ts.URL+"/epochs/advance", map[string]any{"clock": 250})
			So(code, ShouldEqual, http.StatusOK)
			So(body["last_epoch"], ShouldEqual, float64(3))

			Convey("Then moving the clock backwards is rejected", func() {
				code, _ := doJSON(t, http.MethodPost, ts.URL+"/epochs/advance", map[string]any{"clock": 10})
				So(code, ShouldEqual, http.StatusConflict)
			})

			Convey("When the maintainer scores the closed epochs", func() {
				// Epoch 1 closed with an empty top-K.
				code, _ := doJSON(t, http.MethodPost, ts.URL+"/epochs/1/ratings", map[string]any{
					"caller": "maintainer",
				})
				So(code, ShouldEqual, http.StatusOK)

				code, body := doJSON(t, http.MethodPost, ts.URL+"/epochs/2/ratings", map[string]any{
					"caller": "maintainer",
					"ratings": []map[string]any{
						{"entity_id": id, "rating": "80"},
					},
				})
				So(code, ShouldEqual, http.StatusOK)
				So(body["finalized"], ShouldBeTrue)

				Convey("And scoring twice is rejected", func() {
					code, _ := doJSON(t, http.MethodPost, ts.URL+"/epochs/2/ratings", map[string]any{
						"caller": "maintainer",
						"ratings": []map[string]any{
							{"entity_id": id, "rating": "80"},
						},
					})
					So(code, ShouldEqual, http.StatusConflict)
				})

				Convey("And a non-maintainer is rejected", func() {
					code, _ := doJSON(t, http.MethodPost, ts.URL+"/epochs/3/ratings", map[string]any{
						"caller": "mallory",
					})
					So(code, ShouldEqual, http.StatusForbidden)
				})

				Convey("When the claim delay has passed", func() {
					code, _ := doJSON(t, http.MethodPost, ts.URL+"/epochs/advance", map[string]any{"clock": 300})
					So(code, ShouldEqual, http.StatusOK)

					Convey("Then the backer claims a positive reward", func() {
						code, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/stakes/%d/claim", ts.URL, stakeID), map[string]any{
							"caller":     "carol",
							"request_id": "claim-1",
						})
						So(code, ShouldEqual, http.StatusOK)
						So(body["claimed"], ShouldNotEqual, "0")

						Convey("And a second claim has nothing to pay", func() {
							code, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/stakes/%d/claim", ts.URL, stakeID), map[string]any{
								"caller":     "carol",
								"request_id": "claim-2",
							})
							So(code, ShouldEqual, http.StatusConflict)
						})

						Convey("And a replayed claim request is acknowledged as duplicate", func() {
							code, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/stakes/%d/claim", ts.URL, stakeID), map[string]any{
								"caller":     "carol",
								"request_id": "claim-1",
							})
							So(code, ShouldEqual, http.StatusOK)
							So(body["duplicate"], ShouldBeTrue)
						})

						Convey("And the claim history records the payout", func() {
							code, rows := doJSONList(t, fmt.Sprintf("%s/stakes/%d/history", ts.URL, stakeID))
							So(code, ShouldEqual, http.StatusOK)
							So(len(rows), ShouldBeGreaterThan, 0)
						})
					})
				})
			})

			Convey("When the backer closes and withdraws the stake", func() {
				code, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/stakes/%d/close", ts.URL, stakeID), map[string]any{
					"caller": "carol",
				})
				So(code, ShouldEqual, http.StatusOK)

				Convey("Then withdrawing before the delay is rejected", func() {
					code, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/stakes/%d/withdraw", ts.URL, stakeID), map[string]any{
						"caller": "carol",
					})
					So(code, ShouldEqual, http.StatusConflict)
				})

				Convey("Then withdrawing after the delay succeeds", func() {
					code, _ := doJSON(t, http.MethodPost, ts.URL+"/epochs/advance", map[string]any{"clock": 400})
					So(code, ShouldEqual, http.StatusOK)

					code, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/stakes/%d/withdraw", ts.URL, stakeID), map[string]any{
						"caller": "carol",
					})
					So(code, ShouldEqual, http.StatusOK)
					So(body["status"], ShouldEqual, "withdrawn")
				})
			})
		})
	})
}

func TestAdminAndObservabilityEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		ts := newTestServer(t)

		Convey("Then /admin/params exposes the active parameters", func() {
			code, body := doJSON(t, http.MethodGet, ts.URL+"/admin/params", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(body["epoch_length"], ShouldEqual, float64(100))
			So(body["epoch_reward"], ShouldEqual, "1000000")
		})

		Convey("When the maintainer updates parameters", func() {
			code, params := doJSON(t, http.MethodGet, ts.URL+"/admin/params", nil)
			So(code, ShouldEqual, http.StatusOK)
			params["top_k"] = 8

			code, body := doJSON(t, http.MethodPut, ts.URL+"/admin/params", map[string]any{
				"caller": "maintainer",
				"params": params,
			})
			So(code, ShouldEqual, http.StatusOK)
			So(body["top_k"], ShouldEqual, float64(8))

			Convey("And the owner may update them too", func() {
				params["top_k"] = 4
				code, body := doJSON(t, http.MethodPut, ts.URL+"/admin/params", map[string]any{
					"caller": "admin",
					"params": params,
				})
				So(code, ShouldEqual, http.StatusOK)
				So(body["top_k"], ShouldEqual, float64(4))
			})

			Convey("And a non-maintainer is rejected", func() {
				code, _ := doJSON(t, http.MethodPut, ts.URL+"/admin/params", map[string]any{
					"caller": "mallory",
					"params": params,
				})
				So(code, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("Then /stats reports service state", func() {
			code, body := doJSON(t, http.MethodGet, ts.URL+"/stats", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(body["started"], ShouldBeTrue)
		})

		Convey("Then /healthz serves the metrics exposition", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Then current epoch is readable", func() {
			code, body := doJSON(t, http.MethodGet, ts.URL+"/epochs/current", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(body["id"], ShouldEqual, float64(1))
		})

		Convey("Then a body-less advance runs epoch catch-up without moving the clock", func() {
			code, body := doJSON(t, http.MethodPost, ts.URL+"/epochs/advance", map[string]any{"clock": 250})
			So(code, ShouldEqual, http.StatusOK)
			So(body["last_epoch"], ShouldEqual, float64(3))

			code, body = doJSON(t, http.MethodPost, ts.URL+"/epochs/advance", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(body["clock"], ShouldEqual, float64(250))
			So(body["last_epoch"], ShouldEqual, float64(3))
		})
	})
}

func strPtr(s string) *string { return &s }
