/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package config_test

import (
	"os"
	"path/filepath"

	"github.com/corelb/rproxy/pkg/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	It("decodes a YAML config file and fills in retry/buffer defaults", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "rproxy.yaml")
		content := `
buffer_size: 32768
frontends:
  - name: fe1
    bind: "0.0.0.0:80"
    keep_alive: true
backends:
  - name: be1
    servers: ["10.0.0.1:8080", "10.0.0.2:8080"]
    timeout_connect: 2s
`
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

		fs := config.Flags()
		Expect(fs.Parse([]string{"--config", path})).To(Succeed())

		cfg, err := config.Load(fs)
		Expect(err).To(BeNil())
		Expect(cfg.BufferSize).To(Equal(32768))
		Expect(cfg.Frontends).To(HaveLen(1))
		Expect(cfg.Frontends[0].KeepAlive).To(BeTrue())
		Expect(cfg.Backends[0].Servers).To(HaveLen(2))
		Expect(cfg.Backends[0].Retries).To(Equal(3))
	})
})
