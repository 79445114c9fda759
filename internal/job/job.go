package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/studio1767/s3shift/internal/cluster"
	"github.com/studio1767/s3shift/internal/copier"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/s3io"
)

const DefaultStaging = "Temporary"

type ErrNoSuchJob struct {
	msg string
}

func (e *ErrNoSuchJob) Error() string {
	return e.msg
}

type ErrInvalidJob struct {
	msg string
}

func (e *ErrInvalidJob) Error() string {
	return e.msg
}

// Job describes one migration: which folder to drain, where to, and how
// to run the bulk copier.
type Job struct {
	Name string `yaml:"-"`

	Source      string
	Destination string
	Label       string
	Staging     string

	UpperLimit  string   `yaml:"upper_limit"`
	Exclude     []string `yaml:"exclude"`
	MaxClusters int      `yaml:"max_clusters"`

	Copy Copy

	upperLimit int64
}

// Copy configures the external bulk copier.
type Copy struct {
	Binary string
	Args   []string

	// Source and Destination are the copier's names for the two sides.
	Source      string
	Destination string
	DestPath    string `yaml:"dest_path"`
	Port        string

	Timeout        time.Duration
	Warmup         time.Duration
	Interval       time.Duration
	StallThreshold int    `yaml:"stall_threshold"`
	LogFile        string `yaml:"log_file"`
}

// Parse decodes a job, applies defaults and checks it.
func Parse(data []byte, name string) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	job.Name = name

	if job.Source == "" || job.Destination == "" {
		return nil, &ErrInvalidJob{msg: fmt.Sprintf("job %s: source and destination are required", name)}
	}
	if job.Label == "" {
		job.Label = name
	}
	if job.Staging == "" {
		job.Staging = DefaultStaging
	}
	if job.MaxClusters == 0 {
		job.MaxClusters = 1
	}
	if job.MaxClusters < 0 {
		return nil, &ErrInvalidJob{msg: fmt.Sprintf("job %s: max_clusters must be positive", name)}
	}

	// the staging folder lives in the source and must never be clustered
	if !contains(job.Exclude, job.Staging) {
		job.Exclude = append(job.Exclude, job.Staging)
	}

	if job.UpperLimit == "" {
		return nil, &ErrInvalidJob{msg: fmt.Sprintf("job %s: upper_limit is required", name)}
	}
	limit, err := item.ParseSize(job.UpperLimit)
	if err != nil {
		return nil, &ErrInvalidJob{msg: fmt.Sprintf("job %s: bad upper_limit %q: %s", name, job.UpperLimit, err)}
	}
	job.upperLimit = limit

	if job.Copy.Port == "" {
		job.Copy.Port = "5572"
	}
	if _, err := strconv.ParseUint(job.Copy.Port, 10, 16); err != nil {
		return nil, &ErrInvalidJob{msg: fmt.Sprintf("job %s: copy port must be numeric: %q", name, job.Copy.Port)}
	}

	return &job, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Load reads a job from a local file; the job is named after the file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(data, name)
}

func (j *Job) UpperLimitBytes() int64 {
	return j.upperLimit
}

func (j *Job) ClusterOptions() cluster.Options {
	return cluster.Options{
		UpperLimit:  j.upperLimit,
		Exclude:     j.Exclude,
		MaxClusters: j.MaxClusters,
	}
}

func (j *Job) CopierConfig() copier.Config {
	return copier.Config{
		Binary:         j.Copy.Binary,
		Args:           j.Copy.Args,
		LogFile:        j.Copy.LogFile,
		Warmup:         j.Copy.Warmup,
		Interval:       j.Copy.Interval,
		StallThreshold: j.Copy.StallThreshold,
	}
}

func (j *Job) CopyRequest(sizeHint int64) copier.Request {
	return copier.Request{
		Source:      j.Copy.Source,
		Destination: j.Copy.Destination,
		DestPath:    j.Copy.DestPath,
		Port:        j.Copy.Port,
		SizeHint:    sizeHint,
		Timeout:     j.Copy.Timeout,
	}
}

func Download(ctx context.Context, client s3io.Client, jobname string) (*Job, string, error) {
	prefix := fmt.Sprintf("jobs/%s/", jobname)

	// get the key for the latest job configuration
	jobkey, _, err := client.LatestMatching(ctx, prefix)
	if err != nil {
		var nomatch *s3io.ErrNoMatch
		if errors.As(err, &nomatch) {
			return nil, "", &ErrNoSuchJob{
				msg: fmt.Sprintf("No such job: %s", jobname),
			}
		}
		return nil, "", err
	}

	data := bytes.NewBuffer(nil)
	if _, err := client.Download(ctx, jobkey, data); err != nil {
		return nil, jobkey, err
	}

	job, err := Parse(data.Bytes(), jobname)
	if err != nil {
		return nil, jobkey, err
	}
	return job, jobkey, nil
}

// Upload stores a new version of the job, one past the latest in the
// bucket.
func Upload(ctx context.Context, client s3io.Client, source io.Reader, jobname string) (string, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return "", err
	}
	// refuse to publish a job that would not load
	if _, err := Parse(data, jobname); err != nil {
		return "", err
	}

	prefix := fmt.Sprintf("jobs/%s/", jobname)

	latest, _, err := client.LatestMatching(ctx, prefix)
	if err != nil {
		var nomatch *s3io.ErrNoMatch
		if !errors.As(err, &nomatch) {
			return "", err
		}
		latest = ""
	}

	key, err := nextKey(latest, jobname)
	if err != nil {
		return "", err
	}

	if _, err := client.UploadPassphrase(ctx, key, bytes.NewReader(data), true); err != nil {
		return "", err
	}
	return key, nil
}

// nextKey returns the key after latest; an empty latest starts at 001.
func nextKey(latest, jobname string) (string, error) {
	if latest == "" {
		latest = fmt.Sprintf("jobs/%s/%s-000.yml", jobname, jobname)
	}

	re := regexp.MustCompile(fmt.Sprintf("^(.*/%s-)(\\d+)(.*)$", regexp.QuoteMeta(jobname)))
	matches := re.FindStringSubmatch(latest)
	if len(matches) != 4 {
		return "", &ErrInvalidJob{msg: fmt.Sprintf("unexpected job key: %s", latest)}
	}

	id, err := strconv.Atoi(matches[2])
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%03d%s", matches[1], id+1, matches[3]), nil
}
