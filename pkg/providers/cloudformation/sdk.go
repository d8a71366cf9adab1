package cloudformation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfn "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

type sdkClient struct {
	api *cfn.Client
}

// NewSDKClient returns a Client backed by the AWS SDK.
func NewSDKClient(cfg aws.Config) Client {
	return &sdkClient{api: cfn.NewFromConfig(cfg)}
}

func newSTSClient(cfg aws.Config) *sts.Client {
	return sts.NewFromConfig(cfg)
}

func (c *sdkClient) DescribeStack(ctx context.Context, name string) (*StackDescription, error) {
	out, err := c.api.DescribeStacks(ctx, &cfn.DescribeStacksInput{StackName: aws.String(name)})
	if err != nil {
		if isValidationError(err, "does not exist") {
			return nil, nil
		}
		return nil, err
	}
	if len(out.Stacks) == 0 {
		return nil, nil
	}
	return stackFromSDK(out.Stacks[0]), nil
}

func (c *sdkClient) DescribeStackResources(ctx context.Context, name string) ([]StackResource, error) {
	out, err := c.api.DescribeStackResources(ctx, &cfn.DescribeStackResourcesInput{StackName: aws.String(name)})
	if err != nil {
		return nil, err
	}
	resources := make([]StackResource, 0, len(out.StackResources))
	for _, r := range out.StackResources {
		resources = append(resources, StackResource{
			LogicalID:  aws.ToString(r.LogicalResourceId),
			PhysicalID: aws.ToString(r.PhysicalResourceId),
			Type:       aws.ToString(r.ResourceType),
			Status:     string(r.ResourceStatus),
		})
	}
	return resources, nil
}

func (c *sdkClient) ValidateTemplate(ctx context.Context, body string) error {
	_, err := c.api.ValidateTemplate(ctx, &cfn.ValidateTemplateInput{TemplateBody: aws.String(body)})
	return err
}

func (c *sdkClient) CreateStack(ctx context.Context, in StackInput) (string, error) {
	out, err := c.api.CreateStack(ctx, &cfn.CreateStackInput{
		StackName:    aws.String(in.Name),
		TemplateBody: aws.String(in.TemplateBody),
		Tags:         tagsToSDK(in.Tags),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.StackId), nil
}

func (c *sdkClient) UpdateStack(ctx context.Context, in StackInput) (string, error) {
	out, err := c.api.UpdateStack(ctx, &cfn.UpdateStackInput{
		StackName:    aws.String(in.Name),
		TemplateBody: aws.String(in.TemplateBody),
		Tags:         tagsToSDK(in.Tags),
	})
	if err != nil {
		if isValidationError(err, "No updates are to be performed") {
			return "", ErrNoUpdates
		}
		return "", err
	}
	return aws.ToString(out.StackId), nil
}

func (c *sdkClient) DeleteStack(ctx context.Context, name string) error {
	_, err := c.api.DeleteStack(ctx, &cfn.DeleteStackInput{StackName: aws.String(name)})
	return err
}

func (c *sdkClient) WaitForCreate(ctx context.Context, name string, maxWait time.Duration) error {
	return cfn.NewStackCreateCompleteWaiter(c.api).
		Wait(ctx, &cfn.DescribeStacksInput{StackName: aws.String(name)}, maxWait)
}

func (c *sdkClient) WaitForUpdate(ctx context.Context, name string, maxWait time.Duration) error {
	return cfn.NewStackUpdateCompleteWaiter(c.api).
		Wait(ctx, &cfn.DescribeStacksInput{StackName: aws.String(name)}, maxWait)
}

func (c *sdkClient) WaitForDelete(ctx context.Context, name string, maxWait time.Duration) error {
	return cfn.NewStackDeleteCompleteWaiter(c.api).
		Wait(ctx, &cfn.DescribeStacksInput{StackName: aws.String(name)}, maxWait)
}

func isValidationError(err error, contains string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), contains)
}

// tagsToSDK converts tags in key order so requests are stable.
func tagsToSDK(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func stackFromSDK(s types.Stack) *StackDescription {
	desc := &StackDescription{
		ID:           aws.ToString(s.StackId),
		Name:         aws.ToString(s.StackName),
		Status:       string(s.StackStatus),
		StatusReason: aws.ToString(s.StackStatusReason),
		Outputs:      make(map[string]string, len(s.Outputs)),
		Tags:         make(map[string]string, len(s.Tags)),
	}
	for _, o := range s.Outputs {
		desc.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	for _, t := range s.Tags {
		desc.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return desc
}
