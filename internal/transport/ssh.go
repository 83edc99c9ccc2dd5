package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/mmr-tortoise/solo-cook/internal/model"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

// defaultIdentityFiles are tried, in order, when no identity file is given.
var defaultIdentityFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// windowsBannerRegex matches the output of `ver` on Windows hosts.
var windowsBannerRegex = regexp.MustCompile(`(?i)windows`)

// Config holds the connection settings for one target.
type Config struct {
	Target model.Target

	// IdentityFile is a private key path. When empty, the agent and the
	// usual ~/.ssh keys are tried.
	IdentityFile string

	// SSHConfigFile is handed to the ssh binary that rsync spawns.
	// The native client does not read it.
	SSHConfigFile string

	// Password enables password and keyboard-interactive authentication.
	Password string

	// NoHostKeyVerify disables known_hosts checking on both the native
	// client and rsync's ssh.
	NoHostKeyVerify bool

	// KnownHostsFile overrides ~/.ssh/known_hosts.
	KnownHostsFile string

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration
}

// SSH runs commands on the target over a single lazily established SSH
// connection and transfers files with rsync over the ssh binary.
type SSH struct {
	config *Config
	rsync  *Rsync
	logger *zap.Logger

	// Stdout and Stderr receive streamed command output.
	Stdout io.Writer
	Stderr io.Writer
	// Stdin is forwarded to streamed commands, with a PTY when it is a terminal.
	Stdin *os.File

	mu      sync.Mutex
	client  *ssh.Client
	closers []io.Closer

	windowsOnce sync.Once
	windows     bool
	windowsErr  error
}

// NewSSH validates cfg and returns a transport for it. No connection is made
// until the first remote command runs.
func NewSSH(cfg *Config, rsync *Rsync, logger *zap.Logger) (*SSH, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Target.Host == "" {
		return nil, errors.New("config host cannot be empty")
	}

	// Copy config to avoid mutating caller's struct
	configCopy := *cfg
	if configCopy.Target.Port == 0 {
		configCopy.Target.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.Target.User == "" {
		configCopy.Target.User = currentUser()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rsync == nil {
		rsync = NewRsync(logger)
	}

	return &SSH{
		config: &configCopy,
		rsync:  rsync,
		logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	}, nil
}

// ConnectionArgs formats the target for the ssh command line:
// "user@host [-F config] [-i identity] -p port [host key options]".
// The same string is used in rsync's --rsh and in operator hints.
func (s *SSH) ConnectionArgs() string {
	args := []string{s.config.Target.Login()}
	if s.config.SSHConfigFile != "" {
		args = append(args, "-F", quoteArg(s.config.SSHConfigFile))
	}
	if s.config.IdentityFile != "" {
		args = append(args, "-i", quoteArg(s.config.IdentityFile))
	}
	args = append(args, "-p", strconv.Itoa(s.config.Target.Port))
	if s.config.NoHostKeyVerify {
		args = append(args, "-o", "UserKnownHostsFile=/dev/null", "-o", "StrictHostKeyChecking=no")
	}
	return strings.Join(args, " ")
}

// Run executes script and returns its combined output. A non-zero remote
// exit status is reported through CommandResult.Success, not as an error.
func (s *SSH) Run(ctx context.Context, script string) (model.CommandResult, error) {
	session, err := s.session(ctx)
	if err != nil {
		return model.CommandResult{}, err
	}
	defer func() { _ = session.Close() }()
	stop := closeOnDone(ctx, session)
	defer stop()

	s.logger.Debug("running remote command", zap.String("command", script))
	output, err := session.CombinedOutput(script)
	return commandResult(ctx, string(output), err, s.config.Target.Host)
}

// Stream executes script while copying its output to Stdout/Stderr as it
// arrives. When Stdin is a terminal a PTY is requested so interactive
// prompts (sudo passwords) work.
func (s *SSH) Stream(ctx context.Context, script string) (model.CommandResult, error) {
	session, err := s.session(ctx)
	if err != nil {
		return model.CommandResult{}, err
	}
	defer func() { _ = session.Close() }()
	stop := closeOnDone(ctx, session)
	defer stop()

	session.Stdout = s.Stdout
	session.Stderr = s.Stderr

	if s.Stdin != nil && term.IsTerminal(int(s.Stdin.Fd())) {
		width, height, err := term.GetSize(int(s.Stdin.Fd()))
		if err != nil {
			width, height = 80, 24
		}
		modes := ssh.TerminalModes{ssh.ECHO: 1}
		if err := session.RequestPty(termType(), height, width, modes); err != nil {
			return model.CommandResult{}, errors.Wrapf(err, "failed to allocate a PTY on %s", s.config.Target.Host)
		}
		session.Stdin = s.Stdin
	}

	s.logger.Debug("streaming remote command", zap.String("command", script))
	err = session.Run(script)
	return commandResult(ctx, "", err, s.config.Target.Host)
}

// MkdirP creates path and its parents on the target.
func (s *SSH) MkdirP(ctx context.Context, path string) error {
	return s.mustRun(ctx, "mkdir", "-p", path)
}

// Chmod sets the permission mode of path on the target.
func (s *SSH) Chmod(ctx context.Context, mode, path string) error {
	return s.mustRun(ctx, "chmod", mode, path)
}

// IsWindowsLike reports whether the target answers `ver` with a Windows
// banner, meaning rsync runs under Cygwin and needs /cygdrive paths.
// The probe runs once per transport.
func (s *SSH) IsWindowsLike(ctx context.Context) (bool, error) {
	s.windowsOnce.Do(func() {
		result, err := s.Run(ctx, "ver")
		if err != nil {
			s.windowsErr = err
			return
		}
		s.windows = result.Success && windowsBannerRegex.MatchString(result.Output)
	})
	return s.windows, s.windowsErr
}

// Transfer copies files to the target with rsync, tunnelled through ssh
// with this transport's connection arguments.
func (s *SSH) Transfer(ctx context.Context, req TransferRequest) (model.CommandResult, error) {
	return s.rsync.Transfer(ctx, "ssh "+s.ConnectionArgs(), req)
}

// Close releases the SSH connection and any agent socket.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	for _, c := range s.closers {
		_ = c.Close()
	}
	s.closers = nil
	return err
}

func (s *SSH) mustRun(ctx context.Context, args ...string) error {
	cmd, err := Join(args...)
	if err != nil {
		return err
	}
	result, err := s.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.Newf("remote command %q failed on %s: %s",
			cmd, s.config.Target.Host, strings.TrimSpace(result.Output))
	}
	return nil
}

// session opens a new session, connecting first if needed.
func (s *SSH) session(ctx context.Context) (*ssh.Session, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create SSH session on %s", s.config.Target.Host)
	}
	return session, nil
}

// connect establishes the SSH connection once and reuses it afterwards.
func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	auth, err := s.authMethods()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            s.config.Target.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.config.DialTimeout,
	}

	addr := net.JoinHostPort(s.config.Target.Host, strconv.Itoa(s.config.Target.Port))
	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "SSH handshake with %s failed", addr)
	}

	s.logger.Debug("connected", zap.String("addr", addr), zap.String("user", s.config.Target.User))
	s.client = ssh.NewClient(c, chans, reqs)
	return s.client, nil
}

// authMethods collects agent keys, the identity file (or default keys) and
// the password, in that order.
func (s *SSH) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			s.closers = append(s.closers, conn)
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			s.logger.Debug("ssh agent unavailable", zap.Error(err))
		}
	}

	var signers []ssh.Signer
	if s.config.IdentityFile != "" {
		signer, err := loadSigner(s.config.IdentityFile)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	} else if home, err := os.UserHomeDir(); err == nil {
		for _, name := range defaultIdentityFiles {
			signer, err := loadSigner(filepath.Join(home, ".ssh", name))
			if err != nil {
				continue
			}
			signers = append(signers, signer)
		}
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if s.config.Password != "" {
		password := s.config.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, errors.WithHint(
			errors.New("no SSH authentication method available"),
			"Start an ssh-agent, pass --identity-file, or pass --ssh-password.",
		)
	}
	return methods, nil
}

func (s *SSH) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.config.NoHostKeyVerify {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly requested with --no-host-key-verify
	}

	path := s.config.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "cannot locate known_hosts")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "failed to load %s", path),
			"Connect once with ssh to record the host key, or pass --no-host-key-verify.",
		)
	}
	return callback, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read identity file %s", path)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.WithHint(
				errors.Newf("identity file %s is passphrase protected", path),
				"Add the key to ssh-agent with ssh-add.",
			)
		}
		return nil, errors.Wrapf(err, "failed to parse private key %s", path)
	}
	return signer, nil
}

// commandResult maps a session error onto a CommandResult. Remote exit
// statuses become Success=false; transport failures and cancellation stay
// errors.
func commandResult(ctx context.Context, output string, err error, host string) (model.CommandResult, error) {
	if err == nil {
		return model.CommandResult{Success: true, Output: output}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.CommandResult{Output: output}, ctxErr
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return model.CommandResult{Success: false, Output: output}, nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return model.CommandResult{Success: false, Output: output}, nil
	}
	return model.CommandResult{Output: output}, errors.Wrapf(err, "remote command failed on %s", host)
}

// closeOnDone closes c when ctx is canceled. The returned func stops the
// watcher.
func closeOnDone(ctx context.Context, c io.Closer) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func quoteArg(s string) string {
	q, err := Quote(s)
	if err != nil {
		return s
	}
	return q
}

func termType() string {
	if t := os.Getenv("TERM"); t != "" {
		return t
	}
	return "xterm"
}

func currentUser() string {
	for _, key := range []string{"USER", "LOGNAME", "USERNAME"} {
		if u := os.Getenv(key); u != "" {
			return u
		}
	}
	return fmt.Sprintf("uid%d", os.Getuid())
}
