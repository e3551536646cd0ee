// Package store is a SQL-backed channel and account catalog. It works with
// sqlite, postgres and mysql through gorm.
package store

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a channel or account does not exist.
var ErrNotFound = errors.New("not found")

// Channel is a channel clients may join.
type Channel struct {
	Name       string `gorm:"primaryKey;size:200" json:"name"`
	Topic      string `gorm:"size:390" json:"topic"`
	InviteOnly bool   `json:"invite_only"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Invite lets a nick join an invite-only channel. Nicks are stored lower
// case.
type Invite struct {
	Channel   string `gorm:"primaryKey;size:200"`
	Nick      string `gorm:"primaryKey;size:100"`
	CreatedAt time.Time
}

// Account is a nick that must authenticate with a password. Nicks are
// stored lower case.
type Account struct {
	Nick         string `gorm:"primaryKey;size:100"`
	PasswordHash string `gorm:"size:100"`
	CreatedAt    time.Time
}

// Store is a catalog over a SQL database.
type Store struct {
	db       *gorm.DB
	driver   string
	dsn      string
	password string
}

// Open connects to the database for driver and dsn and migrates the schema.
// Connections are shared between stores opened with the same arguments.
func Open(driver, dsn string) (*Store, error) {
	db, err := defaultPool.open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Channel{}, &Invite{}, &Account{}); err != nil {
		return nil, fmt.Errorf("migrate %s store: %w", driver, err)
	}
	return &Store{db: db, driver: driver, dsn: dsn}, nil
}

// WithServerPassword returns a copy of s whose Authenticate requires
// password from every client. Both share the connection.
func (s *Store) WithServerPassword(password string) *Store {
	locked := *s
	locked.password = password
	return &locked
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the shared connection.
func (s *Store) Close() error {
	return defaultPool.close(s.driver, s.dsn)
}

// CreateChannel inserts a channel, or updates it if it exists.
func (s *Store) CreateChannel(ch Channel) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"topic", "invite_only", "updated_at"}),
	}).Create(&ch).Error
	if err != nil {
		return fmt.Errorf("create channel %s: %w", ch.Name, err)
	}
	return nil
}

// Channels returns every channel ordered by name.
func (s *Store) Channels() ([]Channel, error) {
	var channels []Channel
	if err := s.db.Order("name").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// SetTopic changes a channel topic. An empty topic clears it.
func (s *Store) SetTopic(name, topic string) error {
	result := s.db.Model(&Channel{}).Where("name = ?", name).Update("topic", topic)
	if result.Error != nil {
		return fmt.Errorf("set topic %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("channel %s: %w", name, ErrNotFound)
	}
	return nil
}

// Invite allows nick to join channel.
func (s *Store) Invite(channel, nick string) error {
	invite := Invite{Channel: channel, Nick: strings.ToLower(nick)}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&invite).Error; err != nil {
		return fmt.Errorf("invite %s to %s: %w", nick, channel, err)
	}
	return nil
}

// CreateAccount stores a bcrypt hash of password for nick.
func (s *Store) CreateAccount(nick, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	account := Account{Nick: strings.ToLower(nick), PasswordHash: string(hash)}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "nick"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash"}),
	}).Create(&account).Error
	if err != nil {
		return fmt.Errorf("create account %s: %w", nick, err)
	}
	return nil
}

func (s *Store) channel(name string) (*Channel, error) {
	var ch Channel
	err := s.db.Where("name = ?", name).Take(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ChannelExists reports whether name is in the channels table. Database
// errors count as absent.
func (s *Store) ChannelExists(name string) bool {
	_, err := s.channel(name)
	return err == nil
}

// ChannelAllowed reports whether nick may join name: open channels admit
// everyone, invite-only ones only invited nicks.
func (s *Store) ChannelAllowed(name, nick string) bool {
	ch, err := s.channel(name)
	if err != nil {
		return false
	}
	if !ch.InviteOnly {
		return true
	}
	var count int64
	err = s.db.Model(&Invite{}).
		Where("channel = ? AND nick = ?", name, strings.ToLower(nick)).
		Count(&count).Error
	return err == nil && count > 0
}

func (s *Store) ChannelTopic(name string) (string, bool) {
	ch, err := s.channel(name)
	if err != nil || ch.Topic == "" {
		return "", false
	}
	return ch.Topic, true
}

// Authenticate checks the server password, then the account password when
// nick has an account. Nicks without one are accepted.
func (s *Store) Authenticate(nick, password string) bool {
	if s.password != "" && subtle.ConstantTimeCompare([]byte(s.password), []byte(password)) != 1 {
		return false
	}
	var account Account
	err := s.db.Where("nick = ?", strings.ToLower(nick)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}
