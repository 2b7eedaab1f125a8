package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/mediagallery/models"
	"github.com/camden-git/mediagallery/repository"
	"github.com/camden-git/mediagallery/services"
)

type AuthHandler struct {
	UserRepo repository.UserRepository
	Accounts *services.AccountService
}

func NewAuthHandler(userRepo repository.UserRepository, accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{UserRepo: userRepo, Accounts: accounts}
}

type RegisterPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. Credentials are then sent as basic auth.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request payload: "+err.Error())
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Username == "" || payload.Password == "" || payload.Email == "" {
		WriteAPIError(w, http.StatusBadRequest, "invalid_input", "Username, email, and password are required")
		return
	}

	if _, err := h.UserRepo.GetByUsername(payload.Username); err == nil {
		WriteAPIError(w, http.StatusConflict, "conflict", "Username is already taken")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("auth: looking up user %q: %v", payload.Username, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}

	newUser := &models.User{Username: payload.Username, Email: payload.Email}
	if err := newUser.SetPassword(payload.Password); err != nil {
		log.Printf("auth: hashing password for %q: %v", payload.Username, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to create user")
		return
	}
	if err := h.UserRepo.Create(newUser); err != nil {
		log.Printf("auth: creating user %q: %v", payload.Username, err)
		WriteAPIError(w, http.StatusConflict, "conflict", "Failed to create user")
		return
	}

	log.Printf("auth: registered user %d (%s)", newUser.ID, newUser.Username)
	writeOK(w, http.StatusCreated, "User registered successfully", newUser)
}

// CurrentUser retrieves the authenticated user from the request context.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", currentUser(r))
}

// DeleteAccount soft-deletes the caller's account, or reaps it with ?hard=true.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	report, err := h.Accounts.DeleteAccount(r.Context(), currentUserID(r), hard)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Account deleted", report)
}
