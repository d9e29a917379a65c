package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"triggerpay/internal/attest"
	"triggerpay/internal/chain"
	"triggerpay/internal/config"
	"triggerpay/internal/model"
	"triggerpay/internal/mpc"
)

func runKeygen(cmd *cobra.Command, _ []string) error {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("generate seed: %w", err)
	}
	seedHex := hex.EncodeToString(seed)

	signer := attest.NewSigner(time.Now)
	if err := signer.Init(seedHex); err != nil {
		return err
	}
	pub, err := signer.PublicKeyHex()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "TRIGGERPAY_SIGNING_SEED=%s\n", seedHex)
	fmt.Fprintf(out, "public key: %s\n", pub)
	return nil
}

func runAddress(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	deriver, err := deriverFor(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range model.Chains() {
		path, ok := chain.DerivationPath(c)
		if !ok {
			continue
		}
		_, addr, err := deriver.Derive(path)
		if err != nil {
			return fmt.Errorf("derive %s address: %w", c, err)
		}
		fmt.Fprintf(out, "%-9s %-11s %s\n", c, path, addr.Hex())
	}
	return nil
}

func deriverFor(cfg config.Config) (*mpc.Deriver, error) {
	if cfg.ContractID == "" {
		return nil, errors.New("contract-id is required")
	}
	rootKey := cfg.MPCRootPublicKey
	if cfg.MPCDevRootKey != "" {
		local, err := mpc.NewLocalSigner(cfg.MPCDevRootKey, cfg.ContractID)
		if err != nil {
			return nil, err
		}
		rootKey = local.RootPublicKey()
	}
	if rootKey == "" {
		return nil, errors.New("mpc-root-public-key or mpc-dev-root-key is required")
	}
	return mpc.NewDeriver(rootKey, cfg.ContractID)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pub, _ := cmd.Flags().GetString("public-key")
	if pub == "" {
		if cfg.SigningSeed == "" {
			return errors.New("public-key or signing-seed is required")
		}
		signer := attest.NewSigner(time.Now)
		if err := signer.Init(cfg.SigningSeed); err != nil {
			return err
		}
		if pub, err = signer.PublicKeyHex(); err != nil {
			return err
		}
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read attestation: %w", err)
	}
	var att model.Attestation
	if err := json.Unmarshal(raw, &att); err != nil {
		return fmt.Errorf("decode attestation: %w", err)
	}

	if err := attest.Verify(pub, att); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "valid: trigger %s status %s condition_met=%t\n", att.TriggerID, att.ObservedStatus, att.ConditionMet)
	return nil
}
