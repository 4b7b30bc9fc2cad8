package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/plantid/internal/classifier"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/identify"
	"github.com/tphakala/plantid/internal/normalizer"
)

// IdentifyRequest is the JSON body of the identify endpoints. Image holds a
// data URI, bare base64 or an http(s) URL.
type IdentifyRequest struct {
	Image  string  `json:"image"`
	UserID *string `json:"user_id"`
	Organ  string  `json:"organ"`
}

// Identify handles POST /api/v2/identify.
func (c *Controller) Identify(ctx echo.Context) error {
	return c.runIdentify(ctx, c.identifier.Identify)
}

// RetryIdentify handles POST /api/v2/identify/retry. It skips any cached
// result for the image.
func (c *Controller) RetryIdentify(ctx echo.Context) error {
	return c.runIdentify(ctx, c.identifier.Retry)
}

func (c *Controller) runIdentify(ctx echo.Context, run func(context.Context, identify.Request) (*identify.Response, error)) error {
	req, err := bindIdentifyRequest(ctx)
	if err != nil {
		return c.HandleError(ctx, nil, err.Error(), http.StatusBadRequest)
	}

	resp, err := run(ctx.Request().Context(), req)
	if err != nil {
		return c.HandleError(ctx, err, "identification failed", statusFor(err))
	}
	if !resp.Success && resp.Message == "" {
		resp.Message = "no species reached the confidence threshold"
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ClearCache handles DELETE /api/v2/identify/cache.
func (c *Controller) ClearCache(ctx echo.Context) error {
	req, err := bindIdentifyRequest(ctx)
	if err != nil {
		return c.HandleError(ctx, nil, err.Error(), http.StatusBadRequest)
	}
	if err := c.identifier.ClearCache(ctx.Request().Context(), req.Image); err != nil {
		return c.HandleError(ctx, err, "failed to clear cached result", statusFor(err))
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetScan handles GET /api/v2/scans/:id.
func (c *Controller) GetScan(ctx echo.Context) error {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		return c.HandleError(ctx, nil, "scan id is required", http.StatusBadRequest)
	}
	resp, err := c.identifier.GetScan(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "failed to load scan", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, resp)
}

// bindIdentifyRequest accepts either a JSON body or a multipart form with an
// "image" file part.
func bindIdentifyRequest(ctx echo.Context) (identify.Request, error) {
	contentType := ctx.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		return bindMultipart(ctx)
	}

	var body IdentifyRequest
	if err := ctx.Bind(&body); err != nil {
		return identify.Request{}, errors.NewStd("invalid request body")
	}
	body.Image = strings.TrimSpace(body.Image)
	if body.Image == "" {
		return identify.Request{}, errors.NewStd("image is required")
	}
	return identify.Request{
		Image:  normalizer.FromString(body.Image),
		UserID: normalizeUserID(body.UserID),
		Organ:  body.Organ,
	}, nil
}

func bindMultipart(ctx echo.Context) (identify.Request, error) {
	fh, err := ctx.FormFile("image")
	if err != nil {
		return identify.Request{}, errors.NewStd("image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return identify.Request{}, errors.NewStd("could not read image file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return identify.Request{}, errors.NewStd("could not read image file")
	}

	userID := ctx.FormValue("user_id")
	return identify.Request{
		Image:  normalizer.FromBytes(data),
		UserID: normalizeUserID(&userID),
		Organ:  ctx.FormValue("organ"),
	}, nil
}

func normalizeUserID(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		unavailable *classifier.ClassificationUnavailableError
		clientErr   *classifier.ClientRequestError
	)
	switch {
	case normalizer.IsInputError(err):
		return http.StatusBadRequest
	case errors.As(err, &clientErr):
		return http.StatusBadGateway
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
