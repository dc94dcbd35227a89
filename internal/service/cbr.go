package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CBRDailyInfoURL веб-сервис ЦБ РФ с ключевой ставкой
const CBRDailyInfoURL = "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"

type CBRClient struct {
	httpClient *http.Client
	endpoint   string
	now        Clock
	logger     *logrus.Logger
}

// NewCBRClient создаёт новый экземпляр клиента для взаимодействия с веб-сервисом ЦБ РФ
func NewCBRClient(endpoint string, logger *logrus.Logger) *CBRClient {
	if endpoint == "" {
		endpoint = CBRDailyInfoURL
	}
	return &CBRClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		endpoint: endpoint,
		now:      time.Now,
		logger:   logger,
	}
}

// buildSOAPRequest формирует SOAP-запрос для получения ключевой ставки за последние 30 дней
func buildSOAPRequest(now time.Time) string {
	fromDate := now.AddDate(0, 0, -30).Format("2006-01-02")
	toDate := now.Format("2006-01-02")
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
        <soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
            <soap12:Body>
                <KeyRate xmlns="http://web.cbr.ru/">
                    <fromDate>%s</fromDate>
                    <ToDate>%s</ToDate>
                </KeyRate>
            </soap12:Body>
        </soap12:Envelope>`, fromDate, toDate)
}

// sendRequest отправляет SOAP-запрос в ЦБ РФ и возвращает необработанный ответ
func (c *CBRClient) sendRequest(ctx context.Context, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, err
	}

	// Установка заголовков
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка при выполнении HTTP-запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ЦБ РФ вернул статус %d", resp.StatusCode)
	}

	// Чтение тела ответа
	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении ответа: %w", err)
	}

	return rawBody, nil
}

// parseXMLResponse парсит XML-ответ и извлекает последнее значение ключевой ставки
func parseXMLResponse(rawBody []byte) (decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return decimal.Zero, fmt.Errorf("ошибка при разборе XML: %w", err)
	}

	// Ответ отсортирован от новых записей к старым
	krElements := doc.FindElements("//diffgram/KeyRate/KR")
	if len(krElements) == 0 {
		return decimal.Zero, errors.New("данные по ключевой ставке не найдены")
	}

	rateElement := krElements[0].FindElement("./Rate")
	if rateElement == nil {
		return decimal.Zero, errors.New("элемент <Rate> отсутствует в XML-ответе")
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(rateElement.Text()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка при преобразовании ставки: %w", err)
	}
	return rate, nil
}

// GetCentralBankRate получает актуальную ключевую ставку из ЦБ РФ
func (c *CBRClient) GetCentralBankRate(ctx context.Context) (decimal.Decimal, error) {
	c.logger.Debug("Отправка запроса ключевой ставки в ЦБ РФ")
	rawBody, err := c.sendRequest(ctx, buildSOAPRequest(c.now()))
	if err != nil {
		c.logger.WithError(err).Error("Ошибка при отправке запроса в ЦБ РФ")
		return decimal.Zero, err
	}

	rate, err := parseXMLResponse(rawBody)
	if err != nil {
		c.logger.WithError(err).Error("Ошибка при разборе XML-ответа от ЦБ РФ")
		return decimal.Zero, err
	}

	c.logger.WithField("key_rate", rate.String()).Info("Ключевая ставка успешно получена")
	return rate, nil
}
