package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/jksconvert/internal/server"
)

var (
	serveAddr      string
	serveMaxUpload int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP conversion service",
	Long: `Serve POST /convert (multipart form) and GET /healthz.

Form fields: conversion_type (jks-to-pem or pem-to-jks), alias, jks_password,
dest_password, format (zip, k8s-secret, vault), and the uploads jks_file or
pem_file plus key_file.`,
	Example: `  jksconvert serve
  jksconvert serve --addr 127.0.0.1:8080 --max-upload 10485760 --toolchain native`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default :5000)")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload", 0, "Maximum request body in bytes (default 5 MiB)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	override(cmd.Flags(), "addr", &a.cfg.ListenAddr, serveAddr)
	override(cmd.Flags(), "max-upload", &a.cfg.MaxUploadBytes, serveMaxUpload)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(a.pipeline, server.Options{
		Addr:           a.cfg.ListenAddr,
		MaxUploadBytes: a.cfg.MaxUploadBytes,
		ReadTimeout:    a.cfg.ReadTimeout,
		WriteTimeout:   a.cfg.WriteTimeout,
		Logger:         a.logger,
	})
	a.logger.Info("starting jksconvert", "version", version, "toolchain", a.toolchain.Name(), "max_upload_bytes", a.cfg.MaxUploadBytes)
	return srv.ListenAndServe(ctx)
}
