package denylist

// DefaultPatterns contains the hardcoded denylist patterns. These are the
// destructive and privilege-escalation commands a bridge is never allowed
// to wrap.
var DefaultPatterns = Patterns{
	Commands: []string{
		"rm -rf /",
		"rm -rf ~",
		"sudo rm",
		"dd if=/dev/zero",
		"dd of=/dev/",
		":(){ :|:& };:",
		"mkfs.",
		"> /dev/sda",
		"chmod -R 777 /",
		"chmod 777 /",
		"sudo su",
		"sudo -i",
		"shutdown",
		"reboot",
		"/proc/self/environ",
	},
}
