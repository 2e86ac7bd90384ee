package script

import "fmt"

// Command identifies one of the external hypervisor scripts.
type Command int

const (
	// Create takes name, os_type, cpu, ram, storage and prints the new UUID last.
	Create Command = iota
	// Start takes name.
	Start
	// Stop takes name.
	Stop
	// Destroy takes name.
	Destroy
	// Clone takes source name, new name and prints the new UUID last.
	Clone
	// InstallService takes name, service name.
	InstallService
	// ManageUsers takes name, username, password, "yes"/"no" for sudo.
	ManageUsers
	// Stats takes name and prints a JSON document.
	Stats
)

// Commands lists every known command.
var Commands = []Command{Create, Start, Stop, Destroy, Clone, InstallService, ManageUsers, Stats}

// Script returns the file name of the script inside the scripts directory.
func (c Command) Script() string {
	switch c {
	case Create:
		return "create_vm.sh"
	case Start:
		return "start_vm.sh"
	case Stop:
		return "stop_vm.sh"
	case Destroy:
		return "destroy_vm.sh"
	case Clone:
		return "clone_vm.sh"
	case InstallService:
		return "install_service.sh"
	case ManageUsers:
		return "manage_users.sh"
	case Stats:
		return "get_vm_stats.sh"
	default:
		return ""
	}
}

// String returns the short command name used in logs and metric labels.
func (c Command) String() string {
	switch c {
	case Create:
		return "create"
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Destroy:
		return "destroy"
	case Clone:
		return "clone"
	case InstallService:
		return "install_service"
	case ManageUsers:
		return "manage_users"
	case Stats:
		return "get_vm_stats"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// SudoFlag renders the sudo argument expected by manage_users.sh.
func SudoFlag(sudo bool) string {
	if sudo {
		return "yes"
	}
	return "no"
}
