package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/middleware"
	"github.com/btfbank/bank-api/shared/models"
)

// AuthCommander defines the write-side operations used by AuthHandler.
type AuthCommander interface {
	Register(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.Registration, error)
}

// AuthQuerier defines the read-side operations used by AuthHandler.
type AuthQuerier interface {
	Login(ctx context.Context, cmd cqrs.LoginCommand) (*models.AccessToken, error)
	RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (*models.AccessToken, error)
}

// AuthHandler handles registration, login and token refresh.
type AuthHandler struct {
	commands       AuthCommander
	queries        AuthQuerier
	maxUploadBytes int64
}

type RegisterRequest struct {
	FullName        string        `json:"fullName" form:"fullName" validate:"required,max=255"`
	Email           string        `json:"email" form:"email" validate:"required,email,max=255"`
	Phone           string        `json:"phone" form:"phone" validate:"required,max=32"`
	Country         string        `json:"country" form:"country" validate:"required,max=64"`
	DateOfBirth     string        `json:"dateOfBirth" form:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	ReferralCode    string        `json:"referralCode" form:"referralCode" validate:"omitempty,max=64"`
	Password        string        `json:"password" form:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string        `json:"confirmPassword" form:"confirmPassword" validate:"required,eqfield=Password"`
	InitialDeposit  *models.Money `json:"initialDeposit" form:"-"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func NewAuthHandler(commands AuthCommander, queries AuthQuerier, maxUploadBytes int64) *AuthHandler {
	return &AuthHandler{commands: commands, queries: queries, maxUploadBytes: maxUploadBytes}
}

// Register accepts either a JSON body or a multipart form. Only the multipart
// form can carry identity documents (idCardFile, passportPhotoFile).
func (h *AuthHandler) Register(c *gin.Context) {
	var (
		req RegisterRequest
		cmd cqrs.RegisterUserCommand
	)
	if strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxUploadBytes+formOverheadBytes)
		if err := c.ShouldBind(&req); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
		if raw := c.PostForm("initialDeposit"); raw != "" {
			amount, err := models.ParseMoney(raw)
			if err != nil {
				middleware.RespondWithError(c, http.StatusBadRequest, "Invalid initial deposit")
				return
			}
			req.InitialDeposit = &amount
		}
		var err error
		if cmd.IDDocument, err = h.formDocument(c, "idCardFile"); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid document: "+err.Error())
			return
		}
		if cmd.Photo, err = h.formDocument(c, "passportPhotoFile"); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid document: "+err.Error())
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	cmd.FullName = req.FullName
	cmd.Email = req.Email
	cmd.Phone = req.Phone
	cmd.Country = req.Country
	cmd.DateOfBirth = req.DateOfBirth
	cmd.ReferralCode = req.ReferralCode
	cmd.Password = req.Password
	if req.InitialDeposit != nil {
		cmd.InitialDeposit = *req.InitialDeposit
	}

	reg, err := h.commands.Register(c.Request.Context(), cmd)
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

const formOverheadBytes = 1 << 20

var (
	errUnreadableDocument = errors.New("uploaded document could not be read")
	errDocumentTooLarge   = errors.New("uploaded document is too large")
)

// formDocument reads an optional uploaded file. The content type is sniffed
// from the bytes rather than trusted from the client.
func (h *AuthHandler) formDocument(c *gin.Context, field string) (*cqrs.Document, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errUnreadableDocument
	}
	data, err := readUpload(fh, h.maxUploadBytes)
	if err != nil {
		return nil, err
	}
	return &cqrs.Document{
		Filename:    fh.Filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, errDocumentTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errUnreadableDocument
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, errUnreadableDocument
	}
	if int64(len(data)) > limit {
		return nil, errDocumentTooLarge
	}
	return data, nil
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	token, err := h.queries.Login(c.Request.Context(), cqrs.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	token, err := h.queries.RefreshToken(c.Request.Context(), cqrs.RefreshTokenCommand{
		Token: req.Token,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}
