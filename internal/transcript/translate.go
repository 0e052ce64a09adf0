package transcript

import (
	"context"
	"fmt"

	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"
)

// Translator 把一段文本翻译为目标语言。
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// TencentTranslator 腾讯云机器翻译。
type TencentTranslator struct {
	client *tmt.Client
}

// NewTencentTranslator 创建腾讯云机器翻译客户端。
func NewTencentTranslator(secretID, secretKey, region string) (*TencentTranslator, error) {
	if secretID == "" || secretKey == "" {
		return nil, fmt.Errorf("[transcript] 机器翻译需要 SecretID 和 SecretKey")
	}
	if region == "" {
		region = "ap-guangzhou"
	}

	credential := common.NewCredential(secretID, secretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tmt.tencentcloudapi.com"

	client, err := tmt.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[transcript] 创建翻译客户端失败: %w", err)
	}

	logger.Info("[transcript] 机器翻译已初始化")
	return &TencentTranslator{client: client}, nil
}

// Translate 调用 TextTranslate。source 为空时自动检测。
func (t *TencentTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("[transcript] 翻译文本不能为空")
	}
	if source == "" {
		source = "auto"
	}

	request := tmt.NewTextTranslateRequest()
	request.SetContext(ctx)
	request.SourceText = common.StringPtr(text)
	request.Source = common.StringPtr(source)
	request.Target = common.StringPtr(target)
	request.ProjectId = common.Int64Ptr(0)

	response, err := t.client.TextTranslate(request)
	if err != nil {
		return "", fmt.Errorf("[transcript] 翻译请求失败: %w", err)
	}
	if response.Response == nil || response.Response.TargetText == nil {
		return "", fmt.Errorf("[transcript] 翻译响应为空")
	}

	result := *response.Response.TargetText
	logger.Debugf("[transcript] 翻译完成: %s -> %s, 结果: %s", source, target, result)
	return result, nil
}
