// Copyright (c) 2021 Red Hat, Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type CustomValidationOptions struct {
	AllowInsecureURLs bool
}

var once sync.Once

var validatorInstance *validator.Validate

func getInstance() *validator.Validate {
	once.Do(func() {
		validatorInstance = validator.New()
		// the validations must be usable even if SetupCustomValidations has not been called
		_ = validatorInstance.RegisterValidation("https_only", isHttpsUrl)
		validatorInstance.RegisterStructValidation(validateOAuth1Keys, ServiceProviderConfiguration{})
	})
	return validatorInstance
}

func ValidateStruct(s interface{}) error {
	if err := getInstance().Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func SetupCustomValidations(options CustomValidationOptions) error {
	var err error
	if options.AllowInsecureURLs {
		err = getInstance().RegisterValidation("https_only", alwaysTrue)
	} else {
		err = getInstance().RegisterValidation("https_only", isHttpsUrl)
	}
	if err != nil {
		return fmt.Errorf("failed to register the custom validations: %w", err)
	}
	return nil
}

func isHttpsUrl(fl validator.FieldLevel) bool {
	return strings.HasPrefix(fl.Field().String(), "https://")
}

func alwaysTrue(_ validator.FieldLevel) bool {
	return true
}

// validateOAuth1Keys requires a key for one of the supported signature methods of the OAuth 1.0a providers.
func validateOAuth1Keys(sl validator.StructLevel) {
	sp := sl.Current().Interface().(ServiceProviderConfiguration)
	if sp.ConsumerKey != "" && sp.PrivateKey == "" && sp.SharedSecret == "" {
		sl.ReportError(sp.PrivateKey, "PrivateKey", "privateKey", "required_with_consumer_key", "")
	}
}
