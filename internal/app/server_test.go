package app

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fiskal-hr/pdv-assistant/internal/compose"
	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
)

func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func multipartUpload(filename, contentType, lastModified string, data []byte) (*bytes.Buffer, string) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(h)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(w.WriteField("last_modified", lastModified)).To(Succeed())
	Expect(w.Close()).To(Succeed())
	return &body, w.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		queue  *invoice.Queue
		server *Server
	)

	newServer := func(auth BasicAuth) *Server {
		store := &memStore{}
		queue = invoice.NewQueue(stubExtractor{})
		composer := compose.NewComposer(stubPageRenderer{})
		service := NewServiceWithDeps(queue, store, composer, fixedTime{t: time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)})
		return NewServer(service, auth)
	}

	BeforeEach(func() {
		server = newServer(BasicAuth{})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			server = newServer(BasicAuth{Username: "porez", Password: "tajna"})
		})

		It("rejects requests without credentials", func() {
			req := httptest.NewRequest("GET", "/api/invoices", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts requests with the configured credentials", func() {
			req := httptest.NewRequest("GET", "/api/invoices", nil)
			req.SetBasicAuth("porez", "tajna")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /api/invoices", func() {
		It("returns an empty array, never null", func() {
			req := httptest.NewRequest("GET", "/api/invoices", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(rec.Body.String())).To(Equal("[]"))
		})
	})

	Describe("POST /api/invoices", func() {
		It("accepts a supported file and returns the queued entry", func() {
			body, contentType := multipartUpload("faktura.pdf", "application/pdf", "1700000000000", []byte("%PDF-1.7"))
			req := httptest.NewRequest("POST", "/api/invoices", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var entry invoice.Entry
			Expect(json.Unmarshal(rec.Body.Bytes(), &entry)).To(Succeed())
			Expect(entry.Status).To(Equal(invoice.StatusQueued))
			Expect(entry.Filename).To(Equal("faktura.pdf"))
		})

		It("rejects unsupported file types", func() {
			body, contentType := multipartUpload("archive.zip", "application/zip", "1700000000000", []byte("PK"))
			req := httptest.NewRequest("POST", "/api/invoices", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a body larger than the 50MB limit", func() {
			big := bytes.Repeat([]byte("a"), 51<<20)
			body, contentType := multipartUpload("huge.pdf", "application/pdf", "1700000000000", big)
			req := httptest.NewRequest("POST", "/api/invoices", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("too large"))
		})

		It("rejects a missing last_modified timestamp", func() {
			var bodyBuf bytes.Buffer
			w := multipart.NewWriter(&bodyBuf)
			part, err := w.CreateFormFile("file", "faktura.pdf")
			Expect(err).NotTo(HaveOccurred())
			part.Write([]byte("%PDF-1.7"))
			Expect(w.Close()).To(Succeed())

			req := httptest.NewRequest("POST", "/api/invoices", &bodyBuf)
			req.Header.Set("Content-Type", w.FormDataContentType())
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("PUT /api/invoices/{id}/record", func() {
		It("returns per-field failures for an invalid edit", func() {
			queue.Restore([]invoice.Entry{succeededEntry("inv-1", "2025-01-15", "NL805734958B01")})

			edited := succeededEntry("inv-1", "2025-01-15", "NL805734958B01").Record
			edited.LineItems[0].Amount = edited.LineItems[0].Amount.Neg()
			payload, err := json.Marshal(edited)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest("PUT", "/api/invoices/inv-1/record", bytes.NewReader(payload))
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(rec.Body.String()).To(ContainSubstring("line_items[0].amount"))
		})

		It("accepts a valid edit and returns the updated entry", func() {
			queue.Restore([]invoice.Entry{succeededEntry("inv-1", "2025-01-15", "NL805734958B01")})

			edited := succeededEntry("inv-1", "2025-01-15", "NL805734958B01").Record
			payload, err := json.Marshal(edited)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest("PUT", "/api/invoices/inv-1/record", bytes.NewReader(payload))
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/invoices/{id}/reenqueue", func() {
		It("returns conflict for entries without original bytes", func() {
			queue.Restore([]invoice.Entry{succeededEntry("inv-1", "2025-01-15", "NL805734958B01")})
			req := httptest.NewRequest("POST", "/api/invoices/inv-1/reenqueue", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("period endpoints", func() {
		BeforeEach(func() {
			queue.Restore([]invoice.Entry{succeededEntry("inv-1", "2025-01-05", "NL805734958B01")})
		})

		It("lists declaration groups", func() {
			req := httptest.NewRequest("GET", "/api/periods", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var periods []PeriodSummary
			Expect(json.Unmarshal(rec.Body.Bytes(), &periods)).To(Succeed())
			Expect(periods).To(HaveLen(1))
			Expect(periods[0].Period).To(Equal("2025-01"))
		})

		It("serves the raw payment payload", func() {
			req := httptest.NewRequest("GET", "/api/periods/2025-01/payment-payload", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(HavePrefix("HRVHUB30\n"))
		})

		It("serves the PDV declaration as an attachment", func() {
			req := httptest.NewRequest("GET", "/api/periods/2025-01/declarations/pdv", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring("obrazac-pdv-2025-01.xml"))
		})
	})

	Describe("GET /api/artifacts/originals", func() {
		It("returns conflict when originals were lost to a session restore", func() {
			queue.Restore([]invoice.Entry{succeededEntry("inv-1", "2025-01-05", "NL805734958B01")})
			req := httptest.NewRequest("GET", "/api/artifacts/originals", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})
	})
})
