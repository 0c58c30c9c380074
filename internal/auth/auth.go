// Package auth 注册、登录与令牌校验。
// 对外只产出一个稳定的数字用户 ID，购物车与下单模块从不接触凭证。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"online_store/internal/cart"
	"online_store/internal/database"
	"online_store/internal/errs"
	"online_store/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Claims 令牌载荷：Subject 为用户 ID。
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	db       *gorm.DB
	secret   []byte
	tokenTTL time.Duration
	cost     int
}

func NewService(db *gorm.DB, secret string, tokenTTL time.Duration) *Service {
	return &Service{db: db, secret: []byte(secret), tokenTTL: tokenTTL, cost: bcrypt.DefaultCost}
}

// WithBcryptCost 测试里用 bcrypt.MinCost 加速。
func (s *Service) WithBcryptCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register 创建用户并同时创建空购物车。用户名或邮箱重复返回 CONFLICT。
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	// 哈希在事务外完成，不占用写锁。
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{Username: username, Email: email, PasswordHash: string(hash)}
	err = database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		_, err := cart.EnsureCart(tx, u.ID)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errs.Conflict("username or email already registered")
		}
		return nil, err
	}
	return u, nil
}

func validateRegistration(username, email, password string) error {
	if n := len(username); n < 3 || n > 30 {
		return errs.InvalidArgument("username must be 3-30 characters")
	}
	if at := strings.Index(email, "@"); at < 1 || at == len(email)-1 {
		return errs.InvalidArgument("invalid email")
	}
	if n := len(password); n < 6 || n > 72 {
		return errs.InvalidArgument("password must be 6-72 characters")
	}
	return nil
}

// Login 校验用户名密码并签发令牌。失败统一返回 UNAUTHORIZED，不区分用户是否存在。
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, errs.ErrUnauthorized
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, errs.ErrUnauthorized
	}
	token, err := s.IssueToken(&u)
	if err != nil {
		return "", nil, err
	}
	return token, &u, nil
}

// IssueToken 签发 HS256 令牌。
func (s *Service) IssueToken(u *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Authenticate 令牌 -> 用户 ID。
func (s *Service) Authenticate(token string) (uint, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, errs.ErrUnauthorized
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errs.ErrUnauthorized
	}
	return uint(id), nil
}
