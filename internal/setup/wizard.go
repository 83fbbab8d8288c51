package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/njoerd114/wpmirror/internal/config"
	"github.com/njoerd114/wpmirror/internal/model"
)

// Wizard walks the user through writing config.yaml and the .env file that
// holds the application password.
type Wizard struct {
	prompt  *Prompter
	logger  *slog.Logger
	w       io.Writer
	cfgPath string
	envPath string

	// Check is called to verify the site and credentials. Defaults to CheckSite.
	Check SiteChecker
}

// NewWizard creates a Wizard that writes to cfgPath. The .env file goes next
// to it.
func NewWizard(r io.Reader, w io.Writer, cfgPath string, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
		envPath: filepath.Join(filepath.Dir(cfgPath), ".env"),
		Check:   CheckSite,
	}
}

// Run executes the wizard.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nwpmirror setup\n\n")

	if _, err := os.Stat(wiz.cfgPath); err == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite it?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: site and collection.
	fmt.Fprintf(wiz.w, "Step 1/4: WordPress site\n")
	site := wiz.prompt.String("Site URL", "")
	collections := []string{string(model.CollectionPosts), string(model.CollectionPhotos)}
	idx, err := wiz.prompt.Select("Collection to mirror", collections)
	if err != nil {
		return fmt.Errorf("selecting collection: %w", err)
	}
	collection := model.Collection(collections[idx])
	fmt.Fprintf(wiz.w, "\n")

	// Step 2: credentials.
	fmt.Fprintf(wiz.w, "Step 2/4: Credentials\n")
	fmt.Fprintf(wiz.w, "  Create an application password under Users > Profile in wp-admin.\n")
	username := wiz.prompt.String("Username", "")
	password := wiz.prompt.Secret("Application password")

	fmt.Fprintf(wiz.w, "  Checking %s...", site)
	info, err := wiz.Check(ctx, site, username, password, collection)
	if err != nil {
		fmt.Fprintf(wiz.w, " failed\n")
		return fmt.Errorf("cannot read the site: %w\n\n  Check the URL, username and application password, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ok, %d %s on %d page(s)\n\n", info.Total, collection, info.TotalPages)

	// Step 3: cache.
	fmt.Fprintf(wiz.w, "Step 3/4: Cache\n")
	settings := []setting{
		{"", "site_url", site},
		{"", "collection", string(collection)},
	}
	backends := []string{config.BackendFile, config.BackendRedis}
	idx, err = wiz.prompt.Select("Cache backend", backends)
	if err != nil {
		return fmt.Errorf("selecting cache backend: %w", err)
	}
	settings = append(settings, setting{"", "cache_backend", backends[idx]})
	if backends[idx] == config.BackendRedis {
		url := wiz.prompt.String("Redis URL", "redis://localhost:6379/0")
		settings = append(settings, setting{"redis", "url", url})
	} else {
		def, err := config.DefaultCachePath(string(collection))
		if err != nil {
			return err
		}
		settings = append(settings, setting{"", "cache_path", wiz.prompt.String("Cache file", def)})
	}
	concurrency := wiz.prompt.Int("Concurrent page requests", 5, 1, 10)
	settings = append(settings,
		setting{"", "concurrency", strconv.Itoa(concurrency)},
		setting{"credentials", "env_file", wiz.envPath},
	)
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: write.
	fmt.Fprintf(wiz.w, "Step 4/4: Save\n")
	if err := wiz.writeEnv(username, password); err != nil {
		return err
	}
	fmt.Fprintf(wiz.w, "  Credentials written to %s\n", wiz.envPath)

	if err := os.Remove(wiz.cfgPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing old config: %w", err)
	}
	for _, s := range settings {
		if err := config.SetOption(wiz.cfgPath, s.section, s.option, s.value); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
	}
	if _, err := config.Load(wiz.cfgPath); err != nil {
		return fmt.Errorf("written config does not load: %w", err)
	}
	fmt.Fprintf(wiz.w, "  Config written to %s\n\n", wiz.cfgPath)
	fmt.Fprintf(wiz.w, "Run 'wpmirror sync' to build the cache.\n")

	wiz.logger.Debug("setup complete", "config", wiz.cfgPath, "collection", collection)
	return nil
}

type setting struct {
	section, option, value string
}

// writeEnv stores the credentials under the default variable names.
func (wiz *Wizard) writeEnv(username, password string) error {
	if err := os.MkdirAll(filepath.Dir(wiz.envPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	env := map[string]string{
		config.DefaultUsernameEnv: username,
		config.DefaultPasswordEnv: password,
	}
	if err := godotenv.Write(env, wiz.envPath); err != nil {
		return fmt.Errorf("writing %s: %w", wiz.envPath, err)
	}
	if err := os.Chmod(wiz.envPath, 0o600); err != nil {
		return fmt.Errorf("restricting %s: %w", wiz.envPath, err)
	}
	return nil
}
