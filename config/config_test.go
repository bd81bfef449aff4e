package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilience/config"
	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	writeConfig := func(content string) {
		configPath := filepath.Join(tempDir, "config.yaml")
		err := os.WriteFile(configPath, []byte(content), 0644)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tempDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		os.Unsetenv("PERSISTENCE_BACKEND")
		os.Unsetenv("SERVER_ADDRESS")
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				writeConfig(`
server:
  address: ":9090"
  environment: "prod"

logging:
  level: "warn"
  file: "/var/log/resilience.log"

resilience:
  defaults:
    failure_threshold: 4
    timeout: "2s"
  services:
    payments:
      failure_threshold: 2
      open_duration: "10s"
      health_url: "http://payments:8080/health"
      health_interval: "15s"
    search:
      timeout: "500ms"

metrics:
  interval: "30s"

persistence:
  backend: "redis"
  checkpoint: "*/5 * * * *"
  redis:
    address: "redis:6379"
    ttl: "24h"
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
				Expect(cfg.Server.Address).To(Equal(":9090"))
				Expect(cfg.Logging.Level).To(Equal("warn"))
				Expect(cfg.Logging.File).To(Equal("/var/log/resilience.log"))
				Expect(cfg.Metrics.Interval).To(Equal("30s"))
				Expect(cfg.Persistence.Redis.Address).To(Equal("redis:6379"))
			})

			It("should layer circuit defaults over the built-in ones", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				defaults, err := cfg.DefaultSettings()
				Expect(err).NotTo(HaveOccurred())
				Expect(defaults.FailureThreshold).To(Equal(4))
				Expect(defaults.Timeout).To(Equal(2 * time.Second))
				Expect(defaults.HalfOpenRequests).To(Equal(circuitbreaker.DefaultSettings().HalfOpenRequests))
			})

			It("should parse per-service overrides", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				services, err := cfg.ServiceSettings()
				Expect(err).NotTo(HaveOccurred())
				Expect(services).To(HaveLen(2))
				Expect(services["payments"].FailureThreshold).To(Equal(2))
				Expect(services["payments"].OpenDuration).To(Equal(10 * time.Second))
				Expect(services["payments"].Timeout).To(BeZero())
				Expect(services["search"].Timeout).To(Equal(500 * time.Millisecond))

				Expect(cfg.Resilience.Services["payments"].HealthURL).To(Equal("http://payments:8080/health"))
			})
		})

		Context("without a config file", func() {
			It("should use defaults", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.Persistence.Backend).To(Equal(config.BackendMemory))
				Expect(cfg.Persistence.Checkpoint).To(Equal("@every 5m"))
				Expect(cfg.Resilience.Services).To(BeEmpty())
				Expect(cfg.Resilience.ReviewQueue).To(Equal(100))

				defaults, err := cfg.DefaultSettings()
				Expect(err).NotTo(HaveOccurred())
				Expect(defaults).To(Equal(circuitbreaker.DefaultSettings()))
			})

			It("should honour environment variables", func() {
				os.Setenv("PERSISTENCE_BACKEND", "none")
				os.Setenv("SERVER_ADDRESS", "127.0.0.1:7070")

				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Persistence.Backend).To(Equal(config.BackendNone))
				Expect(cfg.Server.Address).To(Equal("127.0.0.1:7070"))
			})
		})

		Context("with an invalid config file", func() {
			It("should reject an unknown persistence backend", func() {
				writeConfig(`
persistence:
  backend: "etcd"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject bad service settings", func() {
				writeConfig(`
resilience:
  services:
    payments:
      failure_rate_threshold: 1.5
`)
				_, err := config.Load()
				Expect(err).To(MatchError(ContainSubstring("payments")))
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = &config.Config{
				Server:  config.ServerConfig{Address: ":8080", Environment: config.EnvDev},
				Logging: config.LoggingConfig{Level: config.LogLevelInfo},
				Metrics: config.MetricsConfig{Interval: "1m", EventBuffer: 100},
				Persistence: config.PersistenceConfig{
					Backend:    config.BackendMemory,
					Key:        "snapshot",
					Checkpoint: "@every 1m",
				},
			}
		})

		It("should accept a minimal configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject a negative review queue size", func() {
			cfg.Resilience.ReviewQueue = -1
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid environment", func() {
			cfg.Server.Environment = "qa"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid address", func() {
			cfg.Server.Address = "not-an-address"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid metrics interval", func() {
			cfg.Metrics.Interval = "often"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an invalid checkpoint schedule", func() {
			cfg.Persistence.Checkpoint = "every five minutes"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should require a redis address for the redis backend", func() {
			cfg.Persistence.Backend = config.BackendRedis
			Expect(cfg.Validate()).NotTo(Succeed())

			cfg.Persistence.Redis.Address = "localhost:6379"
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject a backoff multiplier below one", func() {
			cfg.Resilience.Defaults.BackoffMultiplier = 0.5
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject invalid durations", func() {
			cfg.Resilience.Defaults.Timeout = "soon"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should require a health interval with a health url", func() {
			cfg.Resilience.Services = map[string]config.ServiceConfig{
				"payments": {HealthURL: "http://payments/health"},
			}
			Expect(cfg.Validate()).NotTo(Succeed())

			cfg.Resilience.Services["payments"] = config.ServiceConfig{
				HealthURL:      "http://payments/health",
				HealthInterval: "10s",
			}
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject health urls without an http scheme", func() {
			cfg.Resilience.Services = map[string]config.ServiceConfig{
				"payments": {HealthURL: "ftp://payments/health", HealthInterval: "10s"},
			}
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})
})
