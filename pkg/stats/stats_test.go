/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package stats_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corelb/rproxy/pkg/stats"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeCtrl struct{ result stats.Result }

func (f fakeCtrl) Apply(backend, server string, action stats.Action) stats.Result {
	return f.result
}

func doPost(h gin.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/stats", h)

	req := httptest.NewRequest(http.MethodPost, "/stats", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var _ = Describe("Handler", func() {
	It("redirects 303 with st=DONE on a successful single-server action", func() {
		h := stats.Handler("/stats", fakeCtrl{result: stats.ResultDone})
		form := url.Values{"b": {"be1"}, "action": {"disable"}, "s": {"srv1"}}

		w := doPost(h, form)

		Expect(w.Code).To(Equal(http.StatusSeeOther))
		Expect(w.Header().Get("Location")).To(Equal("/stats;st=DONE"))
	})

	It("reports st=NONE when no server was targeted", func() {
		h := stats.Handler("/stats", fakeCtrl{result: stats.ResultDone})
		form := url.Values{"b": {"be1"}, "action": {"enable"}}

		w := doPost(h, form)
		Expect(w.Header().Get("Location")).To(Equal("/stats;st=NONE"))
	})

	It("reports st=UNKN for an unrecognized action", func() {
		h := stats.Handler("/stats", fakeCtrl{result: stats.ResultDone})
		form := url.Values{"b": {"be1"}, "action": {"nonsense"}, "s": {"srv1"}}

		w := doPost(h, form)
		Expect(w.Header().Get("Location")).To(Equal("/stats;st=UNKN"))
	})
})

var _ = Describe("NewMetrics", func() {
	It("registers every collector without panicking", func() {
		reg := prometheus.NewRegistry()
		Expect(func() { stats.NewMetrics(reg) }).NotTo(Panic())
	})
})
