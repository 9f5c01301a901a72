// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// Instructions holds the text blocks inserted around the caller's
// conversation. They are opaque to the gateway.
type Instructions struct {
	Examples          string `json:"examples" yaml:"examples"`
	FirstInstruction  string `json:"first_instruction" yaml:"first_instruction"`
	SecondInstruction string `json:"second_instruction" yaml:"second_instruction"`
	FinalInstruction  string `json:"final_instruction" yaml:"final_instruction"`
}

// InstructionsConfig locates the instruction set. Path may be a local JSON
// or YAML file or an s3://bucket/key URI; inline fields override whatever
// the file provides.
type InstructionsConfig struct {
	Path         string `yaml:"path"`
	S3Region     string `yaml:"s3_region"`
	S3Endpoint   string `yaml:"s3_endpoint"` // custom endpoint for MinIO compatibility
	Instructions `yaml:",inline"`
}

// Validate reports every missing instruction block.
func (i *Instructions) Validate() error {
	var missing []string
	if strings.TrimSpace(i.Examples) == "" {
		missing = append(missing, "examples")
	}
	if strings.TrimSpace(i.FirstInstruction) == "" {
		missing = append(missing, "first_instruction")
	}
	if strings.TrimSpace(i.SecondInstruction) == "" {
		missing = append(missing, "second_instruction")
	}
	if strings.TrimSpace(i.FinalInstruction) == "" {
		missing = append(missing, "final_instruction")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: instructions.%s", ErrConfigurationMissing, strings.Join(missing, ", instructions."))
	}
	return nil
}

// objectGetter is the subset of the S3 client used to fetch instructions.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadInstructions resolves and validates the instruction set.
func LoadInstructions(ctx context.Context, cfg InstructionsConfig) (*Instructions, error) {
	return loadInstructions(ctx, cfg, nil)
}

func loadInstructions(ctx context.Context, cfg InstructionsConfig, getter objectGetter) (*Instructions, error) {
	var ins Instructions

	if cfg.Path != "" {
		var (
			data []byte
			err  error
		)
		if bucket, key, ok := parseS3URI(cfg.Path); ok {
			if getter == nil {
				getter, err = newS3Client(ctx, cfg)
				if err != nil {
					return nil, err
				}
			}
			data, err = fetchS3Object(ctx, getter, bucket, key)
		} else {
			data, err = os.ReadFile(cfg.Path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read instructions: %w", err)
		}

		if err := parseInstructions(cfg.Path, data, &ins); err != nil {
			return nil, err
		}
	}

	mergeInstructions(&ins, cfg.Instructions)

	if err := ins.Validate(); err != nil {
		return nil, err
	}
	return &ins, nil
}

func parseInstructions(location string, data []byte, ins *Instructions) error {
	var err error
	if strings.EqualFold(path.Ext(location), ".json") {
		err = json.Unmarshal(data, ins)
	} else {
		err = yaml.Unmarshal(data, ins)
	}
	if err != nil {
		return fmt.Errorf("failed to parse instructions %s: %w", location, err)
	}
	return nil
}

func mergeInstructions(dst *Instructions, src Instructions) {
	if src.Examples != "" {
		dst.Examples = src.Examples
	}
	if src.FirstInstruction != "" {
		dst.FirstInstruction = src.FirstInstruction
	}
	if src.SecondInstruction != "" {
		dst.SecondInstruction = src.SecondInstruction
	}
	if src.FinalInstruction != "" {
		dst.FinalInstruction = src.FinalInstruction
	}
}

// parseS3URI splits s3://bucket/key.
func parseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func newS3Client(ctx context.Context, cfg InstructionsConfig) (*s3.Client, error) {
	optFns := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.S3Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func fetchS3Object(ctx context.Context, getter objectGetter, bucket, key string) ([]byte, error) {
	out, err := getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
