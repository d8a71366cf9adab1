// Package authstack declares the identity-directory stack for the steps
// application and manages its lifecycle against a provisioning engine.
//
// # Overview
//
// The stack is one user directory, one application client bound to it, and
// two outputs exporting their identifiers. The declaration is pure data:
// NewAuthStack assembles it, Synthesize renders it as a CloudFormation
// template, and a Provisioner turns it into real resources.
//
// # Core Concepts
//
// ## Directory
//
// The directory (StepsUserPool, named steps-user-pool) allows self sign-up,
// signs users in by username or preferred username, auto-verifies email and
// requires given name, family name and email. It carries two custom
// attributes: tenantId (string, 10 to 15 characters) and createdAt
// (date-time). It is destroyed together with the stack.
//
// ## Client
//
// The client (userpool-client) can read every standard attribute plus both
// custom attributes, and can write the same set minus email_verified and
// phone_number_verified. It allows admin user-password, custom and SRP
// authentication against the directory only.
//
// ## Outputs
//
// stepsUserPoolId and stepsUserPoolClientId are stable names consumed by
// other stacks. Never rename them.
//
// ## Providers
//
// A Provisioner deploys, validates and destroys a stack. The cloudformation
// provider submits the synthesized template; the cognito provider calls the
// directory API directly. Providers register factories with the
// DefaultRegistry from init() functions.
//
// ## State Store
//
// The StateStore tracks deployments and ownership. By default only
// deployments created by this tool can be destroyed.
//
// # Usage
//
//	stack := authstack.NewAuthStack("AuthStack", &authstack.StackProps{
//	    Env: authstack.Environment{Region: "eu-west-1"},
//	})
//
//	m := authstack.NewManager(authstack.WithLogger(logger))
//	outputs, err := m.Deploy(ctx, stack, authstack.DeployOptions{})
//	if err != nil {
//	    return err
//	}
//
//	fmt.Println(outputs.Values[authstack.OutputUserPoolID])
//
// ## Validating a deployment
//
//	report, err := m.Validate(ctx, outputs.Ref, authstack.ValidateOptions{Stack: stack})
//	if err != nil {
//	    return err
//	}
//
//	if !report.IsValid() {
//	    for _, check := range report.FailedChecks() {
//	        fmt.Printf("Failed: %s - %s\n", check.Name, check.Remediation)
//	    }
//	}
package authstack
