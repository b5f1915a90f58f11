package account

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"github.com/fitlink-app/fitlink-server/cmd/utils"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultSessionCredits is the prepaid PT balance granted to every new member.
const DefaultSessionCredits = 30

const tokenLifetime = 7 * 24 * time.Hour

// FirstLoginNotifier sends the one-time welcome push.
type FirstLoginNotifier interface {
	NotifyFirstLogin(accountID uint)
}

type Handler struct {
	db       *gorm.DB
	notifier FirstLoginNotifier
}

func NewHandler(db *gorm.DB, notifier FirstLoginNotifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

// RegisterRoutes registers account-related routes with Gorilla Mux
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/login", h.HandleLogin).Methods("POST")
	router.HandleFunc("/accounts/me", utils.AuthMiddleware(h.HandleMe)).Methods("GET")
}

type registerRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	TrainerID   *uint    `json:"trainer_id,omitempty"`
	Specialties []string `json:"specialties,omitempty"`
}

// HandleRegister creates an account plus its role profile. A member arriving
// with a trainer id is paired immediately: the member profile points at the
// trainer and the pair's chat room is opened in the same transaction.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if req.Role != models.RoleMember && req.Role != models.RoleTrainer {
		http.Error(w, "Role must be member or trainer", http.StatusBadRequest)
		return
	}

	var existing models.Account
	if result := h.db.Where("email = ?", req.Email).First(&existing); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "Email is already in use", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	account := models.Account{
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Name:         req.Name,
		Role:         req.Role,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}

		switch req.Role {
		case models.RoleMember:
			member := models.Member{
				AccountID:      account.ID,
				TrainerID:      req.TrainerID,
				SessionCredits: DefaultSessionCredits,
			}
			if req.TrainerID != nil {
				var trainer models.Trainer
				if err := tx.First(&trainer, *req.TrainerID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return models.NewNotFoundError("트레이너 정보를 찾을 수 없습니다.")
					}
					return err
				}
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
			if req.TrainerID != nil {
				chat := models.Chat{
					MemberID:       member.ID,
					TrainerID:      *req.TrainerID,
					LastActivityAt: time.Now(),
				}
				if err := tx.Create(&chat).Error; err != nil {
					return err
				}
			}
		case models.RoleTrainer:
			trainer := models.Trainer{
				AccountID:   account.ID,
				Specialties: req.Specialties,
			}
			if err := tx.Create(&trainer).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var derr *models.DomainError
		if errors.As(err, &derr) {
			utils.WriteError(w, err)
			return
		}
		log.Printf("account: registration failed: %v", err)
		http.Error(w, "Error registering account", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "회원가입이 완료되었습니다.",
		"account_id": account.ID,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var account models.Account
	if err := h.db.Where("email = ?", req.Email).First(&account).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateAccessToken(account.ID, account.Role)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	if !account.FirstLoginNotified && h.notifier != nil {
		if err := h.db.Model(&models.Account{}).Where("id = ?", account.ID).
			Update("first_login_notified", true).Error; err == nil {
			go h.notifier.NotifyFirstLogin(account.ID)
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful",
		"access_token": accessToken,
		"account_id":   account.ID,
		"role":         account.Role,
	})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var account models.Account
	if err := h.db.First(&account, accountID).Error; err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"account": account,
	}

	switch account.Role {
	case models.RoleMember:
		var member models.Member
		if err := h.db.Where("account_id = ?", account.ID).First(&member).Error; err == nil {
			response["session_credits"] = member.SessionCredits
			response["trainer_id"] = member.TrainerID
		}
	case models.RoleTrainer:
		var trainer models.Trainer
		if err := h.db.Where("account_id = ?", account.ID).First(&trainer).Error; err == nil {
			response["trainer_id"] = trainer.ID
			response["specialties"] = trainer.Specialties
		}
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func generateAccessToken(accountID uint, role string) (string, error) {
	claims := &utils.AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}
