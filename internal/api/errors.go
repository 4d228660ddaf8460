package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/pkg/logging"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the notblank tag and to report json field names
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			field := fl.Field()
			if field.Kind() != reflect.String {
				return true
			}
			return strings.TrimSpace(field.String()) != ""
		})
	})
}

// bindError converts a gin binding failure into a validation error
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required", "notblank":
			return apperr.ValidationField(fe.Field(), fe.Field()+" is required")
		case "min", "max":
			return apperr.ValidationField(fe.Field(), fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		case "email":
			return apperr.ValidationField(fe.Field(), "Invalid email address")
		default:
			return apperr.ValidationField(fe.Field(), fe.Field()+" is invalid")
		}
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation("Request body is required")
	}
	return apperr.Validation("Malformed request body")
}

// bindJSON decodes the body into dst, rendering a 400 on failure
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, bindError(err))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be empty
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, bindError(err))
		return false
	}
	return true
}

// respondError writes err as a JSON error body
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WithComponent("api").Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, apperr.ToPayload(err))
}

// pathID parses a positive integer path parameter
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.ValidationField(name, "Invalid id"))
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, apperr.ValidationField(name, name+" must be an integer"))
		return 0, false
	}
	return n, true
}
