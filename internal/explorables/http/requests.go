package http

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/service"
	"github.com/explorable-research/explorable-backend/internal/explorables/source"
)

const (
	maxUploadBytes = source.MaxStoredBytes + 2<<20
	maxImageBytes  = 5 << 20
)

type createReq struct {
	ArxivURL    string   `json:"arxiv_url"`
	Instruction string   `json:"instruction"`
	Images      []string `json:"images"`
	Template    string   `json:"template"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
}

type continueReq struct {
	Instruction string   `json:"instruction"`
	Images      []string `json:"images"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
}

// bindCreate reads a JSON body or a multipart form with the paper in the pdf field.
func bindCreate(c *gin.Context, userID string) (service.CreateRequest, error) {
	out := service.CreateRequest{UserID: userID}
	if !isMultipart(c) {
		var req createReq
		if err := c.ShouldBindJSON(&req); err != nil {
			return out, domain.NewError(domain.CodeValidation, "invalid body")
		}
		out.ArxivURL = strings.TrimSpace(req.ArxivURL)
		out.Instruction = req.Instruction
		out.Images = req.Images
		out.Template = req.Template
		out.Model = req.Model
		out.Temperature = req.Temperature
		return out, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		return out, domain.NewError(domain.CodeTooLarge, "request body is too large or malformed")
	}
	out.ArxivURL = strings.TrimSpace(formValue(form, "arxiv_url"))
	out.Instruction = formValue(form, "instruction")
	out.Template = formValue(form, "template")
	out.Model = formValue(form, "model")
	out.Temperature, err = parseTemperature(formValue(form, "temperature"))
	if err != nil {
		return out, err
	}

	if files := form.File["pdf"]; len(files) > 0 {
		data, err := readPart(files[0], source.MaxStoredBytes)
		if err != nil {
			return out, err
		}
		out.PDF = data
		out.PDFFilename = files[0].Filename
	}
	images, err := readImages(form.File["images"])
	if err != nil {
		return out, err
	}
	out.Images = images
	return out, nil
}

func bindContinue(c *gin.Context, userID, projectID string) (service.ContinueRequest, error) {
	out := service.ContinueRequest{UserID: userID, ProjectID: projectID}
	var req continueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return out, domain.NewError(domain.CodeValidation, "invalid body")
	}
	out.Instruction = req.Instruction
	out.Images = req.Images
	out.Model = req.Model
	out.Temperature = req.Temperature
	return out, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func parseTemperature(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, domain.NewError(domain.CodeValidation, "temperature must be a number")
	}
	return &t, nil
}

// readPart reads at most limit+1 bytes so oversize parts are still reported as too large downstream.
func readPart(fh *multipart.FileHeader, limit int) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, domain.Wrap(domain.CodeValidation, err, "cannot read %s", fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return nil, domain.Wrap(domain.CodeValidation, err, "cannot read %s", fh.Filename)
	}
	return data, nil
}

// readImages converts uploaded images into data URLs.
func readImages(files []*multipart.FileHeader) ([]string, error) {
	out := make([]string, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh, maxImageBytes)
		if err != nil {
			return nil, err
		}
		if len(data) > maxImageBytes {
			return nil, domain.NewError(domain.CodeTooLarge, "image %s is too large", fh.Filename)
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return nil, domain.NewError(domain.CodeInvalidFormat, "%s is not an image", fh.Filename)
		}
		out = append(out, fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)))
	}
	return out, nil
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
