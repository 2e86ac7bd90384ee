// Package store persists instances and their services and users in sqlite.
//
// Every Store method takes a context and is safe for concurrent use. The
// underlying database handle is pinned to a single connection, so writes are
// serialized by the driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jbweber/anvil/internal/status"
)

var (
	// ErrNotFound is returned when an instance id does not exist.
	ErrNotFound = errors.New("instance not found")

	// ErrDuplicateName is returned when an instance name is already taken.
	ErrDuplicateName = errors.New("instance name already exists")
)

// Store is the instance repository.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	dsn := path + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Instance{}, &Service{}, &VMUser{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.WithField("path", path).Debug("database opened")

	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn with a Store bound to a single transaction. The
// transaction commits if fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}

// NameExists reports whether an instance with name exists.
func (s *Store) NameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Instance{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check instance name: %w", err)
	}
	return count > 0, nil
}

// CreateInstance inserts inst and sets its ID. Services and Users on inst are
// not inserted.
func (s *Store) CreateInstance(ctx context.Context, inst *Instance) error {
	if inst.Status == "" {
		inst.Status = status.Stopped
	}

	err := s.db.WithContext(ctx).Omit("Services", "Users").Create(inst).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, inst.Name)
		}
		return fmt.Errorf("failed to create instance %s: %w", inst.Name, err)
	}
	return nil
}

// ListInstances returns every instance, newest first.
func (s *Store) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&instances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// GetInstance returns the instance with id.
func (s *Store) GetInstance(ctx context.Context, id uint) (*Instance, error) {
	var inst Instance
	err := s.db.WithContext(ctx).First(&inst, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get instance %d: %w", id, err)
	}
	return &inst, nil
}

// SetStatus updates the status of instance id.
func (s *Store) SetStatus(ctx context.Context, id uint, st status.Status) error {
	if !st.Valid() {
		return fmt.Errorf("invalid status %q", st)
	}

	res := s.db.WithContext(ctx).Model(&Instance{}).Where("id = ?", id).Update("status", st)
	if res.Error != nil {
		return fmt.Errorf("failed to update status of instance %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// DeleteInstance removes the instance and all of its services and users.
func (s *Store) DeleteInstance(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("instance_id = ?", id).Delete(&Service{}).Error; err != nil {
			return fmt.Errorf("failed to delete services of instance %d: %w", id, err)
		}
		if err := tx.Where("instance_id = ?", id).Delete(&VMUser{}).Error; err != nil {
			return fmt.Errorf("failed to delete users of instance %d: %w", id, err)
		}

		res := tx.Delete(&Instance{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete instance %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil
	})
}

// AddService records serviceName as installed on instance id.
func (s *Store) AddService(ctx context.Context, instanceID uint, serviceName string) (*Service, error) {
	svc := &Service{
		InstanceID:  instanceID,
		ServiceName: serviceName,
		Status:      ServiceInstalled,
	}
	if err := s.db.WithContext(ctx).Create(svc).Error; err != nil {
		return nil, fmt.Errorf("failed to add service %s to instance %d: %w", serviceName, instanceID, err)
	}
	return svc, nil
}

// AddUser records an OS user on instance id.
func (s *Store) AddUser(ctx context.Context, instanceID uint, username string, hasSudo bool) (*VMUser, error) {
	user := &VMUser{
		InstanceID: instanceID,
		Username:   username,
		HasSudo:    hasSudo,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to add user %s to instance %d: %w", username, instanceID, err)
	}
	return user, nil
}

// ListServices returns the services of instance id, newest first.
func (s *Store) ListServices(ctx context.Context, instanceID uint) ([]Service, error) {
	var services []Service
	err := s.db.WithContext(ctx).Where("instance_id = ?", instanceID).
		Order("installed_at DESC").Order("id DESC").Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list services of instance %d: %w", instanceID, err)
	}
	return services, nil
}

// ListUsers returns the users of instance id, newest first.
func (s *Store) ListUsers(ctx context.Context, instanceID uint) ([]VMUser, error) {
	var users []VMUser
	err := s.db.WithContext(ctx).Where("instance_id = ?", instanceID).
		Order("created_at DESC").Order("id DESC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users of instance %d: %w", instanceID, err)
	}
	return users, nil
}

// CopyDependents copies every service and user row of srcID onto dstID.
func (s *Store) CopyDependents(ctx context.Context, srcID, dstID uint) error {
	db := s.db.WithContext(ctx)

	var services []Service
	if err := db.Where("instance_id = ?", srcID).Order("id").Find(&services).Error; err != nil {
		return fmt.Errorf("failed to read services of instance %d: %w", srcID, err)
	}
	for _, svc := range services {
		clone := Service{InstanceID: dstID, ServiceName: svc.ServiceName, Status: svc.Status}
		if err := db.Create(&clone).Error; err != nil {
			return fmt.Errorf("failed to copy service %s: %w", svc.ServiceName, err)
		}
	}

	var users []VMUser
	if err := db.Where("instance_id = ?", srcID).Order("id").Find(&users).Error; err != nil {
		return fmt.Errorf("failed to read users of instance %d: %w", srcID, err)
	}
	for _, u := range users {
		clone := VMUser{InstanceID: dstID, Username: u.Username, HasSudo: u.HasSudo}
		if err := db.Create(&clone).Error; err != nil {
			return fmt.Errorf("failed to copy user %s: %w", u.Username, err)
		}
	}

	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
