package swagger_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pentest-portal/api"
	"github.com/frahmantamala/pentest-portal/internal/transport/swagger"
)

var _ = Describe("OpenAPI document", func() {
	It("loads the embedded document with every route group", func() {
		doc, err := swagger.Load(context.Background(), api.OpenAPI)
		Expect(err).NotTo(HaveOccurred())

		for _, path := range []string{
			"/api/auth/role",
			"/api/dashboard/metrics",
			"/api/reports/{id}",
			"/api/reports/{id}/download",
			"/api/client-access",
			"/api/audit",
		} {
			Expect(doc.Paths.Value(path)).NotTo(BeNil(), path)
		}
		Expect(doc.Paths.Value("/api/auth/role").Patch).NotTo(BeNil())
		Expect(doc.Components.Schemas).To(HaveKey("ClientUpdate"))
		Expect(doc.Components.Schemas).To(HaveKey("ReportUpdate"))
	})

	It("rejects a broken document", func() {
		_, err := swagger.Load(context.Background(), []byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"))
		Expect(err).To(HaveOccurred())
	})

	It("serves the raw document as yaml", func() {
		w := httptest.NewRecorder()
		swagger.SpecHandler(api.OpenAPI)(w, httptest.NewRequest(http.MethodGet, swagger.SpecPath, nil))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(Equal("application/yaml"))
		Expect(w.Body.String()).To(ContainSubstring("openapi: 3.0.3"))
	})
})
