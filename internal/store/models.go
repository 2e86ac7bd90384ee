package store

import (
	"time"

	"github.com/jbweber/anvil/internal/status"
)

// Instance is a provisioned virtual machine as anvil knows it. Status only
// reflects the last external operation that was confirmed successful.
type Instance struct {
	ID           uint          `gorm:"primaryKey" json:"id" yaml:"id"`
	Name         string        `gorm:"uniqueIndex;not null" json:"name" yaml:"name"`
	OSType       string        `gorm:"not null" json:"os_type" yaml:"os_type"`
	CPUCores     int           `gorm:"not null" json:"cpu_cores" yaml:"cpu_cores"`
	RAMSize      int           `gorm:"not null" json:"ram_size" yaml:"ram_size"`         // MB
	StorageSize  int           `gorm:"not null" json:"storage_size" yaml:"storage_size"` // MB
	IPAddress    string        `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	Status       status.Status `gorm:"not null;default:stopped" json:"status" yaml:"status"`
	ExternalUUID string        `gorm:"column:vm_uuid" json:"vm_uuid,omitempty" yaml:"vm_uuid,omitempty"`
	CreatedAt    time.Time     `gorm:"index" json:"created_at" yaml:"created_at"`

	Services []Service `gorm:"constraint:OnDelete:CASCADE" json:"services,omitempty" yaml:"services,omitempty"`
	Users    []VMUser  `gorm:"constraint:OnDelete:CASCADE" json:"users,omitempty" yaml:"users,omitempty"`
}

// TableName overrides the gorm default.
func (Instance) TableName() string {
	return "instances"
}

// Service is a software package installed on an instance. The same service
// may be recorded more than once.
type Service struct {
	ID          uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	InstanceID  uint      `gorm:"index;not null" json:"instance_id" yaml:"instance_id"`
	ServiceName string    `gorm:"not null" json:"service_name" yaml:"service_name"`
	Status      string    `gorm:"not null;default:installed" json:"status" yaml:"status"`
	InstalledAt time.Time `gorm:"autoCreateTime" json:"installed_at" yaml:"installed_at"`
}

func (Service) TableName() string {
	return "services"
}

// VMUser is an OS account provisioned inside an instance.
type VMUser struct {
	ID         uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	InstanceID uint      `gorm:"index;not null" json:"instance_id" yaml:"instance_id"`
	Username   string    `gorm:"not null" json:"username" yaml:"username"`
	HasSudo    bool      `json:"has_sudo" yaml:"has_sudo"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

func (VMUser) TableName() string {
	return "vm_users"
}

// ServiceInstalled is the status recorded for every service row.
const ServiceInstalled = "installed"
